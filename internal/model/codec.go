package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/klauspost/compress/zstd"

	appErr "pdjudge/pkg/errors"
)

// Task bodies arrive either as plain JSON or, for bulk rejudge producers
// that batch large tasks, as base64-wrapped zstd-compressed JSON. The first
// byte disambiguates: JSON objects always start with '{'.

// DecodeTask parses a queue message body into a Task.
func DecodeTask(body []byte) (Task, error) {
	var task Task
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return task, appErr.New(appErr.MalformedTask).WithMessage("empty task body")
	}
	raw := trimmed
	if trimmed[0] != '{' {
		decoded, err := decompress(trimmed)
		if err != nil {
			return task, err
		}
		raw = decoded
	}
	if err := json.Unmarshal(raw, &task); err != nil {
		return task, appErr.Wrapf(err, appErr.MalformedTask, "decode task failed")
	}
	if task.Submission.ID == 0 {
		return task, appErr.New(appErr.MalformedTask).WithMessage("task missing submission id")
	}
	return task, nil
}

// EncodeTask serializes a Task, optionally zstd-compressing the body.
func EncodeTask(task Task, compress bool) ([]byte, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.MalformedTask, "encode task failed")
	}
	if !compress {
		return raw, nil
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "create zstd encoder failed")
	}
	defer encoder.Close()
	compressed := encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(compressed)))
	base64.StdEncoding.Encode(encoded, compressed)
	return encoded, nil
}

// EncodeReport serializes a Report for the report queue, optionally
// zstd-compressing the body the same way bulk task producers do.
func EncodeReport(report Report, compress bool) ([]byte, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "encode report failed")
	}
	if !compress {
		return raw, nil
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "create zstd encoder failed")
	}
	defer encoder.Close()
	compressed := encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(compressed)))
	base64.StdEncoding.Encode(encoded, compressed)
	return encoded, nil
}

// DecodeReport parses a report queue message body, plain or compressed.
func DecodeReport(body []byte) (Report, error) {
	var report Report
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return report, appErr.New(appErr.InternalError).WithMessage("empty report body")
	}
	raw := trimmed
	if trimmed[0] != '{' {
		decoded, err := decompress(trimmed)
		if err != nil {
			return report, err
		}
		raw = decoded
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return report, appErr.Wrapf(err, appErr.InternalError, "decode report failed")
	}
	return report, nil
}

func decompress(body []byte) ([]byte, error) {
	compressed := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(compressed, body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.MalformedTask, "decode base64 task body failed")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalError, "create zstd decoder failed")
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(compressed[:n], nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.MalformedTask, "decompress task body failed")
	}
	return raw, nil
}
