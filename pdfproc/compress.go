// CLAUDE:SUMMARY Ghostscript /screen compression with uncompressed fallback.
package pdfproc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Compress shrinks the PDF through Ghostscript's /screen preset with
// 150 DPI image downsampling. Any failure (missing binary, timeout,
// empty output) falls through to the original bytes; the batch PDF is
// still usable uncompressed, just expensive to store.
func (p *Processor) Compress(ctx context.Context, data []byte) []byte {
	log := p.cfg.Logger

	out, err := p.compress(ctx, data)
	if err != nil {
		log.Warn("pdf compression failed, keeping original", "error", err)
		return data
	}
	log.Info("pdf compressed",
		"original_bytes", len(data), "compressed_bytes", len(out))
	return out
}

func (p *Processor) compress(ctx context.Context, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "pdfproc-*")
	if err != nil {
		return nil, fmt.Errorf("pdfproc: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "in.pdf")
	outPath := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("pdfproc: write input: %w", err)
	}

	gsCtx, cancel := context.WithTimeout(ctx, p.cfg.GSTimeout)
	defer cancel()

	cmd := exec.CommandContext(gsCtx, p.cfg.GSBinary,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/screen",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dColorImageResolution=150",
		"-dGrayImageResolution=150",
		"-dMonoImageResolution=150",
		"-dColorImageDownsampleType=/Bicubic",
		"-dGrayImageDownsampleType=/Bicubic",
		"-dColorConversionStrategy=/sRGB",
		"-dProcessColorModel=/DeviceRGB",
		"-sOutputFile="+outPath,
		inPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdfproc: ghostscript: %w (%s)", err, firstLine(output))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("pdfproc: read output: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pdfproc: ghostscript produced empty output")
	}
	return out, nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
