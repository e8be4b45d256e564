// Package raster renders document pages through an external renderer
// process. The renderer contract is JSON on stdout: a render call returns
// {success, imageData (base64 PNG), imageWidth, imageHeight} and an
// --info call returns {success, pageCount}; failures carry {success:
// false, error}.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Compile-time check: Source implements domain.RasterSource.
var _ domain.RasterSource = (*Source)(nil)

// Config holds the renderer process settings.
type Config struct {
	Bin      string // interpreter or standalone binary
	Script   string // script path; empty when Bin is standalone
	FilesDir string // directory holding uploaded document files
}

// Source renders pages by shelling out to the configured renderer.
type Source struct {
	cfg Config
}

// New creates an exec-based raster source.
func New(cfg Config) *Source {
	return &Source{cfg: cfg}
}

type renderReply struct {
	Success     bool   `json:"success"`
	ImageData   string `json:"imageData"`
	ImageWidth  int    `json:"imageWidth"`
	ImageHeight int    `json:"imageHeight"`
	PageCount   int    `json:"pageCount"`
	Error       string `json:"error"`
}

// RenderPage renders one page at the given scale (1.0 = 72 DPI).
func (s *Source) RenderPage(
	ctx context.Context, documentID string, pageNumber int, scale float64,
) (domain.PageImage, error) {
	reply, err := s.invoke(ctx,
		s.documentPath(documentID),
		strconv.Itoa(pageNumber),
		strconv.FormatFloat(scale, 'f', -1, 64),
	)
	if err != nil {
		return domain.PageImage{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(reply.ImageData)
	if err != nil {
		return domain.PageImage{}, fmt.Errorf("%w: decode image data: %w", domain.ErrRaster, err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return domain.PageImage{}, fmt.Errorf("%w: decode bitmap: %w", domain.ErrRaster, err)
	}

	width, height := reply.ImageWidth, reply.ImageHeight
	if width <= 0 || height <= 0 {
		b := img.Bounds()
		width, height = b.Dx(), b.Dy()
	}

	return domain.PageImage{Image: img, Width: width, Height: height}, nil
}

// PageCount queries the document's page count without rendering.
func (s *Source) PageCount(ctx context.Context, documentID string) (int, error) {
	reply, err := s.invoke(ctx, s.documentPath(documentID), "--info")
	if err != nil {
		return 0, err
	}
	if reply.PageCount <= 0 {
		return 0, fmt.Errorf("%w: renderer reported %d pages", domain.ErrRaster, reply.PageCount)
	}
	return reply.PageCount, nil
}

// HealthCheck verifies the renderer binary (and script, when configured)
// are present. It does not invoke the renderer.
func (s *Source) HealthCheck(_ context.Context) error {
	if _, err := exec.LookPath(s.cfg.Bin); err != nil {
		return fmt.Errorf("%w: renderer binary: %w", domain.ErrRaster, err)
	}
	if s.cfg.Script != "" {
		if _, err := os.Stat(s.cfg.Script); err != nil {
			return fmt.Errorf("%w: renderer script: %w", domain.ErrRaster, err)
		}
	}
	return nil
}

func (s *Source) invoke(ctx context.Context, args ...string) (renderReply, error) {
	var argv []string
	if s.cfg.Script != "" {
		argv = append(argv, s.cfg.Script)
	}
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, s.cfg.Bin, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// The renderer reports failures as JSON with a non-zero exit; prefer
	// its error message over the raw exit status.
	var reply renderReply
	if jsonErr := json.Unmarshal(stdout.Bytes(), &reply); jsonErr == nil {
		if !reply.Success {
			return renderReply{}, fmt.Errorf("%w: %s", domain.ErrRaster, reply.Error)
		}
		return reply, nil
	}

	if runErr != nil {
		return renderReply{}, fmt.Errorf("%w: renderer exited: %v: %s",
			domain.ErrRaster, runErr, stderr.String())
	}
	return renderReply{}, fmt.Errorf("%w: renderer produced unparseable output", domain.ErrRaster)
}

func (s *Source) documentPath(documentID string) string {
	return filepath.Join(s.cfg.FilesDir, documentID+".pdf")
}
