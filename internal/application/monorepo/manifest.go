// Package monorepo provides application services that read and write
// workspace manifests and discover the packages of a workspace.
package monorepo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relicta-tech/monorel/internal/domain/version"
	"github.com/relicta-tech/monorel/internal/domain/workspace"
	rperrors "github.com/relicta-tech/monorel/internal/errors"
	"github.com/relicta-tech/monorel/internal/fileutil"
)

// ManifestFile is the manifest name of every package.
const ManifestFile = "package.json"

// rawManifest is the subset of package.json monorel reads.
type rawManifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Private              bool              `json:"private"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	Workspaces           json.RawMessage   `json:"workspaces"`
}

func (m *rawManifest) section(kind workspace.DependencyKind) map[string]string {
	switch kind {
	case workspace.DependencyDev:
		return m.DevDependencies
	case workspace.DependencyPeer:
		return m.PeerDependencies
	case workspace.DependencyOptional:
		return m.OptionalDependencies
	default:
		return m.Dependencies
	}
}

// workspacePatterns returns the "workspaces" globs, accepting both the array
// form and the {"packages": [...]} form.
func (m *rawManifest) workspacePatterns() ([]string, error) {
	if len(m.Workspaces) == 0 || string(m.Workspaces) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(m.Workspaces, &list); err == nil {
		return list, nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(m.Workspaces, &obj); err != nil {
		return nil, err
	}
	return obj.Packages, nil
}

// ManifestReader parses package manifests through the filesystem façade.
type ManifestReader struct {
	fs fileutil.FS
}

// NewManifestReader creates a reader.
func NewManifestReader(fsys fileutil.FS) *ManifestReader {
	return &ManifestReader{fs: fsys}
}

func (r *ManifestReader) readRaw(manifestPath string) (*rawManifest, error) {
	const op = "monorepo.ReadManifest"

	content, err := r.fs.ReadString(manifestPath)
	if err != nil {
		if rperrors.IsKind(err, rperrors.KindNotFound) {
			return nil, rperrors.CodedWrap(err, rperrors.CodeManifestNotFound, op, "manifest not found: %s", manifestPath)
		}
		return nil, err
	}
	var m rawManifest
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return nil, rperrors.CodedWrap(err, rperrors.CodeManifestParse, op, "parse %s", manifestPath)
	}
	return &m, nil
}

// Read parses the manifest at root/dir/package.json into a Package whose
// paths are relative to root.
func (r *ManifestReader) Read(root, dir string) (*workspace.Package, error) {
	const op = "monorepo.ReadManifest"

	manifestPath := filepath.Join(root, filepath.FromSlash(dir), ManifestFile)
	m, err := r.readRaw(manifestPath)
	if err != nil {
		return nil, err
	}
	return toPackage(op, m, dir, manifestPath)
}

func toPackage(op string, m *rawManifest, dir, manifestPath string) (*workspace.Package, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, rperrors.Coded(rperrors.CodeNameMissing, op, "%s has no name", manifestPath)
	}

	var v version.SemanticVersion
	switch {
	case m.Version == "" && m.Private:
		v = version.Zero
	default:
		parsed, err := version.Parse(m.Version)
		if err != nil {
			return nil, rperrors.CodedWrap(err, rperrors.CodeVersionInvalid, op,
				"%s: invalid version %q", manifestPath, m.Version)
		}
		v = parsed
	}

	rel := path.Clean(dir)
	pkg := &workspace.Package{
		Name:         m.Name,
		Version:      v,
		Path:         rel,
		ManifestPath: path.Join(rel, ManifestFile),
		Private:      m.Private,
	}

	for _, kind := range workspace.DependencyKinds {
		section := m.section(kind)
		names := make([]string, 0, len(section))
		for name := range section {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			req, err := version.ParseRequirement(section[name])
			if err != nil {
				return nil, rperrors.CodedWrap(err, rperrors.CodeManifestParse, op,
					"%s: %s %q has an invalid requirement %q", manifestPath, kind.ManifestField(), name, section[name])
			}
			pkg.Dependencies = append(pkg.Dependencies, workspace.Dependency{
				Name:        name,
				Requirement: req,
				Kind:        kind,
			})
		}
	}
	return pkg, nil
}

// RequirementEdit replaces the requirement a package declares on a dependency.
type RequirementEdit struct {
	Kind        workspace.DependencyKind
	Name        string
	Requirement string
}

// ManifestEdit describes the changes to make to one manifest. An empty
// Version leaves the version untouched.
type ManifestEdit struct {
	Version      string
	Requirements []RequirementEdit
}

// IsEmpty reports whether the edit changes nothing.
func (e ManifestEdit) IsEmpty() bool {
	return e.Version == "" && len(e.Requirements) == 0
}

// ManifestWriter rewrites manifest values in place. Only the bytes of the
// edited string values change; key order, indentation and unrelated keys are
// kept exactly as they were.
type ManifestWriter struct {
	fs fileutil.FS
}

// NewManifestWriter creates a writer.
func NewManifestWriter(fsys fileutil.FS) *ManifestWriter {
	return &ManifestWriter{fs: fsys}
}

// Apply applies edit to the manifest at manifestPath and writes it atomically.
func (w *ManifestWriter) Apply(manifestPath string, edit ManifestEdit) error {
	const op = "monorepo.WriteManifest"

	if edit.IsEmpty() {
		return nil
	}
	content, err := w.fs.ReadString(manifestPath)
	if err != nil {
		if rperrors.IsKind(err, rperrors.KindNotFound) {
			return rperrors.CodedWrap(err, rperrors.CodeManifestNotFound, op, "manifest not found: %s", manifestPath)
		}
		return err
	}

	updated, err := EditManifest([]byte(content), edit)
	if err != nil {
		return rperrors.CodedWrap(err, rperrors.CodeManifestWrite, op, "edit %s", manifestPath)
	}
	if err := w.fs.WriteStringAtomic(manifestPath, string(updated)); err != nil {
		return rperrors.CodedWrap(err, rperrors.CodeManifestWrite, op, "write %s", manifestPath)
	}
	return nil
}

type span struct {
	start, end int
}

func spanKey(field, name string) string {
	return field + "\x00" + name
}

// EditManifest returns data with the edited values replaced in place.
func EditManifest(data []byte, edit ManifestEdit) ([]byte, error) {
	spans, err := scanManifest(data)
	if err != nil {
		return nil, err
	}

	type replacement struct {
		span
		value string
	}
	var reps []replacement

	if edit.Version != "" {
		s, ok := spans["version"]
		if !ok {
			return nil, errors.New("manifest has no version field")
		}
		reps = append(reps, replacement{s, edit.Version})
	}
	for _, re := range edit.Requirements {
		s, ok := spans[spanKey(re.Kind.ManifestField(), re.Name)]
		if !ok {
			return nil, fmt.Errorf("%s does not declare %q", re.Kind.ManifestField(), re.Name)
		}
		reps = append(reps, replacement{s, re.Requirement})
	}

	sort.Slice(reps, func(i, j int) bool { return reps[i].start > reps[j].start })
	out := append([]byte(nil), data...)
	for _, r := range reps {
		quoted, err := quoteJSON(r.value)
		if err != nil {
			return nil, err
		}
		out = append(out[:r.start], append(quoted, out[r.end:]...)...)
	}
	return out, nil
}

func quoteJSON(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var editableSections = map[string]bool{
	"dependencies":         true,
	"devDependencies":      true,
	"peerDependencies":     true,
	"optionalDependencies": true,
}

// scanManifest records the byte span of the top-level "version" string and of
// every string value in the dependency sections.
func scanManifest(data []byte) (map[string]span, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	spans := make(map[string]span)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("manifest is not a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		keyEnd := int(dec.InputOffset())

		switch {
		case key == "version":
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if _, ok := tok.(string); ok {
				spans["version"] = span{valueStart(data, keyEnd), int(dec.InputOffset())}
			} else if err := skipRest(dec, tok); err != nil {
				return nil, err
			}
		case editableSections[key]:
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if d, ok := tok.(json.Delim); !ok || d != '{' {
				if err := skipRest(dec, tok); err != nil {
					return nil, err
				}
				continue
			}
			for dec.More() {
				nameTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				name, _ := nameTok.(string)
				nameEnd := int(dec.InputOffset())
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				if _, ok := valTok.(string); ok {
					spans[spanKey(key, name)] = span{valueStart(data, nameEnd), int(dec.InputOffset())}
				} else if err := skipRest(dec, valTok); err != nil {
					return nil, err
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
		default:
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if err := skipRest(dec, tok); err != nil {
				return nil, err
			}
		}
	}
	return spans, nil
}

// valueStart returns the offset of the opening quote of the value that
// follows a key ending at keyEnd.
func valueStart(data []byte, keyEnd int) int {
	i := keyEnd
	for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\n' || data[i] == '\r' || data[i] == ':') {
		i++
	}
	return i
}

// skipRest consumes the remainder of a value whose first token is tok.
func skipRest(dec *json.Decoder, tok json.Token) error {
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if d, ok := t.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
