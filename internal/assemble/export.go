package assemble

import (
	"archive/zip"
	"bytes"
	"fmt"

	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
)

// tiktokManifest is the sidecar TikTok requires next to the document.
var tiktokManifest = []byte(`{"playable_orientation": "portrait", "playable_languages": ["en"]}`)

// Export is one network-ready artifact.
type Export struct {
	Network          Network
	FileName         string
	ContentType      string
	Data             []byte
	SizeBytes        int
	Valid            bool
	ValidationErrors []string
}

// Export packages a playable for one network: a bare HTML file or a deflated
// zip archive, named per the network's convention. The artifact is
// re-validated against the network's own ceiling; a violation is reported on
// the result, not raised.
func (a *Assembler) Export(p *Playable, network Network) (*Export, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil playable", ferrors.ErrInvalidInput)
	}
	if !Known(network) {
		return nil, fmt.Errorf("%w: unknown network %q", ferrors.ErrInvalidInput, network)
	}
	spec := Spec(network)

	out := &Export{Network: network}
	switch spec.Format {
	case "zip":
		data, err := zipArchive(spec, network, []byte(p.Document))
		if err != nil {
			return nil, fmt.Errorf("packaging %s archive: %w", network, err)
		}
		out.FileName = string(network) + "_playable.zip"
		out.ContentType = "application/zip"
		out.Data = data
	default:
		out.FileName = spec.MainFileName
		out.ContentType = "text/html; charset=utf-8"
		out.Data = []byte(p.Document)
	}
	out.SizeBytes = len(out.Data)

	errs := append([]string(nil), p.ValidationErrors...)
	if out.SizeBytes > spec.MaxBytes {
		errs = append(errs, fmt.Sprintf(
			"%s artifact is %d bytes, %s allows at most %d", out.FileName, out.SizeBytes, spec.Name, spec.MaxBytes))
	}
	out.ValidationErrors = errs
	out.Valid = len(errs) == 0

	a.logger.Info().
		Str("network", string(network)).
		Str("file", out.FileName).
		Int("size_bytes", out.SizeBytes).
		Bool("valid", out.Valid).
		Msg("playable exported")

	return out, nil
}

// zipArchive writes the document (and any network sidecar files) into a
// deflated in-memory zip. Entry metadata is left at the zero value so the
// archive bytes are deterministic.
func zipArchive(spec NetworkSpec, network Network, document []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	entry, err := w.CreateHeader(&zip.FileHeader{Name: spec.MainFileName, Method: zip.Deflate})
	if err != nil {
		return nil, err
	}
	if _, err := entry.Write(document); err != nil {
		return nil, err
	}

	if network == NetworkTikTok {
		cfg, err := w.CreateHeader(&zip.FileHeader{Name: "config.json", Method: zip.Deflate})
		if err != nil {
			return nil, err
		}
		if _, err := cfg.Write(tiktokManifest); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
