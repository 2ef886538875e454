package engine

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/spaghettifunk/portrait/engine/config"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/testbed"
)

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Shutdown() })
	return e
}

func decodePNG(t *testing.T, b []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("decoded %T, want *image.NRGBA", img)
	}
	return nrgba
}

func TestExtractIllustrationFromBundle(t *testing.T) {
	il := testbed.Illustration{
		Codename: "amiya",
		Width:    520,
		Height:   516,
		Color:    [3]uint8{12, 6, 3},
		Alpha:    9,
	}
	tests := []struct {
		name string
		opts testbed.BundleOptions
		il   func(testbed.Illustration) testbed.Illustration
	}{
		{name: "lz4", opts: testbed.BundleOptions{Compression: testbed.CompressionLZ4}},
		{name: "streamed", opts: testbed.BundleOptions{}, il: func(il testbed.Illustration) testbed.Illustration {
			il.Streamed = true
			return il
		}},
		{name: "serialized v17", opts: testbed.BundleOptions{Serialized: testbed.SerializedOptions{Version: 17}}},
	}
	e := newEngine(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			il := il
			if tt.il != nil {
				il = tt.il(il)
			}
			blob, err := testbed.Bundle(tt.opts, il.Textures()...)
			if err != nil {
				t.Fatalf("building bundle: %v", err)
			}
			out, err := e.ExtractIllustration(blob, il.Codename, false)
			if err != nil {
				t.Fatalf("ExtractIllustration: %v", err)
			}
			img := decodePNG(t, out)
			if b := img.Bounds(); b.Dx() != il.Width || b.Dy() != il.Height {
				t.Fatalf("image is %dx%d", b.Dx(), b.Dy())
			}
			want := testbed.SolidColor(12, 6, 3)
			want.A = testbed.SolidColor(9, 9, 9).R
			if got := img.NRGBAAt(17, 401); got != want {
				t.Fatalf("pixel = %v, want %v", got, want)
			}
			if e.Outstanding() != 0 {
				t.Fatalf("outstanding = %d", e.Outstanding())
			}
		})
	}
}

func TestExtractSkin(t *testing.T) {
	base := testbed.Illustration{Codename: "amiya", Width: 516, Height: 516, Color: [3]uint8{1, 2, 3}, Alpha: 15}
	skin := base
	skin.Skin = "#2"
	skin.Color = [3]uint8{7, 8, 9}

	blob, err := testbed.Bundle(testbed.BundleOptions{Compression: testbed.CompressionLZ4},
		append(base.Textures(), skin.Textures()...)...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}
	e := newEngine(t, nil)

	img, err := e.CompositeIllustration(blob, "amiya", true)
	if err != nil {
		t.Fatalf("skin: %v", err)
	}
	want := testbed.SolidColor(7, 8, 9)
	if got := img.NRGBA().NRGBAAt(0, 0); got.R != want.R || got.G != want.G || got.B != want.B || got.A != 255 {
		t.Fatalf("skin pixel = %v, want %v", got, want)
	}

	img, err = e.CompositeIllustration(blob, "amiya", false)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	want = testbed.SolidColor(1, 2, 3)
	if got := img.NRGBA().NRGBAAt(0, 0); got.R != want.R || got.G != want.G || got.B != want.B {
		t.Fatalf("default pixel = %v, want %v", got, want)
	}

	if _, err := e.CompositeIllustration(blob, "amiya#2", true); err != nil {
		t.Fatalf("numbered skin: %v", err)
	}
}

func TestExtractIllustrationErrors(t *testing.T) {
	e := newEngine(t, nil)
	il := testbed.Illustration{Codename: "amiya", Width: 520, Height: 520}
	blob, err := testbed.Bundle(testbed.BundleOptions{}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}

	if _, err := e.ExtractIllustration(blob, "kalts", false); !errors.Is(err, core.ErrResourceNotFound) {
		t.Fatalf("unknown codename: error = %v", err)
	}
	if _, err := e.ExtractIllustration([]byte("definitely not a bundle"), "amiya", false); !errors.Is(err, core.ErrMalformedContainer) {
		t.Fatalf("garbage: error = %v", err)
	}
	if m := e.Metrics(); m.Failed != 2 || m.Succeeded != 0 {
		t.Fatalf("metrics = %+v", m)
	}
	if e.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", e.Outstanding())
	}
}

func TestExtractFileAndFormats(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 600, Height: 520, Color: [3]uint8{3, 3, 3}, Alpha: 15}
	blob, err := testbed.Bundle(testbed.BundleOptions{Compression: testbed.CompressionLZ4}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "amiya.ab.zst")
	if err := os.WriteFile(path, enc.EncodeAll(blob, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	enc.Close()

	cfg := config.Default()
	cfg.Output.Format = "jpeg"
	cfg.Output.Quality = 90
	cfg.Output.MaxDimension = 300
	e := newEngine(t, cfg)

	out, err := e.ExtractFile(path, "amiya", false)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	jc, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("jpeg.DecodeConfig: %v", err)
	}
	if jc.Width != 300 || jc.Height != 260 {
		t.Fatalf("jpeg is %dx%d, want 300x260", jc.Width, jc.Height)
	}
}

func TestShutdown(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Stage() != EngineStageRunning {
		t.Fatalf("stage = %d", e.Stage())
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if e.Stage() != EngineStageShutdown {
		t.Fatalf("stage = %d", e.Stage())
	}
	if _, err := e.ExtractIllustration(nil, "amiya", false); !errors.Is(err, ErrEngineShutdown) {
		t.Fatalf("error = %v, want ErrEngineShutdown", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Jobs.Workers = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected an error")
	}
}
