// Package persistence provides the file-backed changeset store.
package persistence

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/monorel/internal/domain/changeset"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
)

// Format is an on-disk changeset encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats lists the supported formats in lookup order.
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML}

// ParseFormat parses a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatJSON, nil
	}
	return "", rperrors.Coded(rperrors.CodeInvalidConfig, "persistence.ParseFormat",
		"unknown changeset format %q (want json, yaml or toml)", s)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Codec serializes changesets in one format.
type Codec interface {
	Format() Format
	Marshal(c *changeset.Changeset) ([]byte, error)
	Unmarshal(data []byte, c *changeset.Changeset) error
}

// CodecFor returns the codec of f.
func CodecFor(f Format) Codec {
	switch f {
	case FormatYAML:
		return yamlCodec{}
	case FormatTOML:
		return tomlCodec{}
	default:
		return jsonCodec{}
	}
}

type jsonCodec struct{}

func (jsonCodec) Format() Format { return FormatJSON }

func (jsonCodec) Marshal(c *changeset.Changeset) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) Unmarshal(data []byte, c *changeset.Changeset) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

type yamlCodec struct{}

func (yamlCodec) Format() Format { return FormatYAML }

func (yamlCodec) Marshal(c *changeset.Changeset) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) Unmarshal(data []byte, c *changeset.Changeset) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

type tomlCodec struct{}

func (tomlCodec) Format() Format { return FormatTOML }

func (tomlCodec) Marshal(c *changeset.Changeset) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tomlCodec) Unmarshal(data []byte, c *changeset.Changeset) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}
