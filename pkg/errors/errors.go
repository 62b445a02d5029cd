// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeRegistryToolNotFound       Code = "registry.tool.get.not_found"
	CodeRegistryToolConflict       Code = "registry.tool.create.conflict"
	CodeRegistryToolNameInvalid    Code = "registry.tool.name.invalid_input"
	CodeRegistryToolSourceInvalid  Code = "registry.tool.source.invalid_input"
	CodeRegistryToolInactive       Code = "registry.tool.resolve.inactive"
	CodeRegistryDeleteUnconfirmed  Code = "registry.tool.delete.invalid_input"
	CodeRegistrySchemaIncompatible Code = "registry.schema.version.incompatible"

	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreQueryInvalid       Code = "store.query.invalid_input"
	CodeStoreChunkCountMismatch Code = "store.chunk.insert.invalid_input"
	CodeStoreDimensionConflict  Code = "store.embedding.dimension.conflict"

	CodeChunkerConfigInvalid Code = "chunker.config.invalid_value"

	CodeIngestModeInvalid  Code = "ingest.mode.invalid_input"
	CodeIngestNewConflict  Code = "ingest.mode.new.conflict"
	CodeIngestWalkFailure  Code = "ingest.source.walk.io_failure"
	CodeIngestFileRead     Code = "ingest.file.read.io_failure"
	CodeIngestFileHash     Code = "ingest.file.hash.io_failure"
	CodeIngestEncodeFailed Code = "ingest.chunk.encode.failure"

	CodeEmbedModelLoad         Code = "embed.model.load_failure"
	CodeEmbedEncodeFailure     Code = "embed.encode.failure"
	CodeEmbedResponseInvalid   Code = "embed.response.invalid"
	CodeEmbedDimensionMismatch Code = "embed.dimension.conflict"
	CodeEmbedCacheClosed       Code = "embed.cache.closed"

	CodeSearchQueryInvalid Code = "search.query.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeMCPServeFailure Code = "mcp.serve.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// IsIOFailure reports filesystem-level read/stat/walk failures recorded
// during ingestion.
func IsIOFailure(err error) bool {
	return reason(CodeOf(err)) == "io_failure"
}

// IsModelLoad reports embedding backend load/initialization failures.
func IsModelLoad(err error) bool {
	return reason(CodeOf(err)) == "load_failure"
}

// IsInactive reports resolution of a tool that exists but is disabled.
func IsInactive(err error) bool {
	return reason(CodeOf(err)) == "inactive"
}

// IsStorage reports database-level failures from the store layer.
func IsStorage(err error) bool {
	code := CodeOf(err)
	return strings.HasPrefix(string(code), "store.") && reason(code) == "failure"
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
