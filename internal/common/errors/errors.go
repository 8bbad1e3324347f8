package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupportedFile = errors.New("unsupported file format")
	ErrUsage           = errors.New("usage error")

	// Schema / value errors (collected per item unless noted)
	ErrSchema         = errors.New("schema error")
	ErrType           = errors.New("unknown type")
	ErrEncoding       = errors.New("unknown encoding")
	ErrToken          = errors.New("token did not parse")
	ErrLengthMismatch = errors.New("element count mismatch")
	ErrRange          = errors.New("value out of range for declared width")

	// Container errors (fatal)
	ErrFormat = errors.New("container format error")
	ErrIO     = errors.New("i/o error")

	// Compression Errors
	ErrCompressionFailed   = errors.New("compression failed")
	ErrDecompressionFailed = errors.New("decompression failed")

	// File & Directory Errors
	ErrFileNotFound   = errors.New("file not found")
	ErrFileReadError  = errors.New("error reading file")
	ErrFileWriteError = errors.New("error writing to file")
	ErrFileExists     = errors.New("file already exists")
	ErrDirNotFound    = errors.New("directory not found")

	// Configuration Errors
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigParseError = errors.New("error parsing configuration")
)
