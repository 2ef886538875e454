package loaders_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/spaghettifunk/portrait/engine/assets/loaders"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
	"github.com/spaghettifunk/portrait/testbed"
)

func readAll(t *testing.T, h resources.DataHandle) []byte {
	t.Helper()
	b, err := io.ReadAll(io.NewSectionReader(h, 0, h.Size()))
	if err != nil {
		t.Fatalf("reading texture data: %v", err)
	}
	return b
}

func checkAssets(t *testing.T, got []*resources.TextureAsset, want []testbed.Texture) {
	t.Helper()
	if len(got) != len(want)+1 {
		t.Fatalf("got %d objects, want %d", len(got), len(want)+1)
	}
	if got[0].ClassID != resources.ClassIDAssetBundle {
		t.Errorf("first object class = %s, want AssetBundle", got[0].ClassID)
	}
	for i, w := range want {
		a := got[i+1]
		if a.ClassID != resources.ClassIDTexture2D {
			t.Errorf("%s: class = %s", w.Name, a.ClassID)
		}
		if a.Name != w.Name || int(a.Width) != w.Width || int(a.Height) != w.Height {
			t.Errorf("object %d = %q %dx%d, want %q %dx%d", i, a.Name, a.Width, a.Height, w.Name, w.Width, w.Height)
		}
		if a.Format != resources.TextureFormatETCRGB4 {
			t.Errorf("%s: format = %d", w.Name, a.Format)
		}
		if a.Data == nil {
			t.Fatalf("%s: no data handle", w.Name)
		}
		if !bytes.Equal(readAll(t, a.Data), w.Data) {
			t.Errorf("%s: data differs", w.Name)
		}
	}
}

func TestBundleLoaderRoundTrip(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 20, Height: 12, Color: [3]uint8{1, 2, 3}, Alpha: 7}

	tests := []struct {
		name     string
		opts     testbed.BundleOptions
		streamed bool
	}{
		{name: "uncompressed", opts: testbed.BundleOptions{}},
		{name: "lz4 small blocks", opts: testbed.BundleOptions{
			Compression: testbed.CompressionLZ4,
			BlockSize:   512,
			Serialized:  testbed.SerializedOptions{Version: 17},
		}},
		{name: "lzma", opts: testbed.BundleOptions{Compression: testbed.CompressionLZMA}},
		{name: "info at end with padding", opts: testbed.BundleOptions{
			Compression:     testbed.CompressionLZ4,
			BlocksInfoAtEnd: true,
			PadBlockInfo:    true,
		}},
		{name: "version 6 big endian", opts: testbed.BundleOptions{
			Version:    6,
			Serialized: testbed.SerializedOptions{Version: 15, BigEndian: true},
		}},
		{name: "streamed", opts: testbed.BundleOptions{}, streamed: true},
		{name: "streamed lz4 v19", opts: testbed.BundleOptions{
			Compression: testbed.CompressionLZ4,
			Serialized:  testbed.SerializedOptions{Version: 19},
		}, streamed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			il := il
			il.Streamed = tt.streamed
			textures := il.Textures()

			blob, err := testbed.Bundle(tt.opts, textures...)
			if err != nil {
				t.Fatalf("building bundle: %v", err)
			}
			bl := &loaders.BundleLoader{}
			assets, err := bl.Load(blob)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			checkAssets(t, assets, textures)
		})
	}
}

func TestBundleLoaderStreamedNodes(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 8, Height: 8, Streamed: true}
	blob, err := testbed.Bundle(testbed.BundleOptions{}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}
	bl := &loaders.BundleLoader{}
	b, err := bl.Open(blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(b.Nodes) != 2 {
		t.Fatalf("got %d nodes, want serialized file and .resS", len(b.Nodes))
	}
	if filepath.Ext(b.Nodes[1].Path) != ".resS" {
		t.Errorf("second node = %q", b.Nodes[1].Path)
	}
	if _, ok := b.File(filepath.Base(b.Nodes[1].Path)); !ok {
		t.Errorf("resource file not found by base name")
	}
}

func TestBundleLoaderErrors(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 8, Height: 8}
	good, err := testbed.Bundle(testbed.BundleOptions{}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}
	noTree, err := testbed.Bundle(testbed.BundleOptions{Serialized: testbed.SerializedOptions{NoTypeTree: true}}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"other signature", []byte("UnityWeb\x00\x00\x00\x00\x06"), core.ErrUnknownContainer},
		{"no signature", []byte("garbage"), core.ErrUnknownContainer},
		{"truncated", good[:len(good)/2], core.ErrMalformedContainer},
		{"no type tree", noTree, core.ErrNoTypeTree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bl := &loaders.BundleLoader{}
			if _, err := bl.Load(tt.blob); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBundleLoaderMaxDataSize(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 64, Height: 64}
	blob, err := testbed.Bundle(testbed.BundleOptions{}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}
	bl := &loaders.BundleLoader{MaxDataSize: 1024}
	if _, err := bl.Load(blob); !errors.Is(err, core.ErrMalformedContainer) {
		t.Fatalf("error = %v, want ErrMalformedContainer", err)
	}
}

func TestBundleLoaderBlocksInfoSize(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 64, Height: 64}
	blob, err := testbed.Bundle(testbed.BundleOptions{Compression: testbed.CompressionLZ4}, il.Textures()...)
	if err != nil {
		t.Fatalf("building bundle: %v", err)
	}
	// signature, version, player version, engine revision, size, compressed info size
	at := len("UnityFS\x00") + 4 + len("5.x.x\x00") + len("2021.3.1f1\x00") + 8 + 4

	tests := []struct {
		name  string
		size  uint32
		limit int64
	}{
		{name: "above fixed cap", size: 0x50000000},
		{name: "above data limit", size: 1 << 21, limit: 1 << 20},
		{name: "declared size mismatch", size: 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patched := bytes.Clone(blob)
			binary.BigEndian.PutUint32(patched[at:], tt.size)
			bl := &loaders.BundleLoader{MaxDataSize: tt.limit}
			if _, err := bl.Load(patched); !errors.Is(err, core.ErrMalformedContainer) {
				t.Fatalf("error = %v, want ErrMalformedContainer", err)
			}
		})
	}

	bl := &loaders.BundleLoader{MaxDataSize: 1 << 20}
	if _, err := bl.Load(blob); err != nil {
		t.Fatalf("unpatched bundle: %v", err)
	}
}

func TestSerializedFileLoader(t *testing.T) {
	il := testbed.Illustration{Codename: "amiya", Width: 12, Height: 8, Color: [3]uint8{4, 5, 6}}
	textures := il.Textures()
	file, resS := testbed.SerializedFile(testbed.SerializedOptions{Version: 21}, textures...)
	if len(resS) != 0 {
		t.Fatalf("unexpected resource data")
	}

	sl := &loaders.SerializedFileLoader{}
	if sl.Signature() != "" {
		t.Fatalf("serialized file loader must be a fallback")
	}
	assets, err := sl.Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkAssets(t, assets, textures)

	il.Streamed = true
	file, _ = testbed.SerializedFile(testbed.SerializedOptions{ResourceName: "x.resS"}, il.Textures()...)
	if _, err := sl.Load(file); !errors.Is(err, core.ErrMalformedContainer) {
		t.Fatalf("streamed texture without bundle: error = %v", err)
	}
}

func TestSerializedFileObjects(t *testing.T) {
	tex := testbed.Texture{Name: "char_002_amiya", Width: 4, Height: 4, Data: testbed.SolidETC1Texture(4, 4, 1, 1, 1)}
	file, _ := testbed.SerializedFile(testbed.SerializedOptions{}, tex)

	sf, err := loaders.ParseSerializedFile("CAB-test", file)
	if err != nil {
		t.Fatalf("ParseSerializedFile: %v", err)
	}
	if sf.Version != 22 || !sf.TypeTrees || sf.UnityVersion != "2021.3.1f1" {
		t.Fatalf("header = v%d trees=%v unity=%q", sf.Version, sf.TypeTrees, sf.UnityVersion)
	}
	if len(sf.Objects) != 2 {
		t.Fatalf("got %d objects", len(sf.Objects))
	}
	fields, err := sf.Read(&sf.Objects[1])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if fields["m_Name"] != "char_002_amiya" {
		t.Errorf("m_Name = %v", fields["m_Name"])
	}
	if fields["m_Width"] != int32(4) || fields["m_TextureFormat"] != int32(34) {
		t.Errorf("m_Width = %v, m_TextureFormat = %v", fields["m_Width"], fields["m_TextureFormat"])
	}
	stream, ok := fields["m_StreamData"].(map[string]any)
	if !ok || stream["path"] != "" {
		t.Errorf("m_StreamData = %v", fields["m_StreamData"])
	}
}

func TestReadBlob(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte("UnityFS\x00portrait"), 512)

	plain := filepath.Join(dir, "plain.ab")
	if err := os.WriteFile(plain, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	packed := filepath.Join(dir, "packed.ab.zst")
	if err := os.WriteFile(packed, enc.EncodeAll(payload, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	enc.Close()

	for _, p := range []string{plain, packed} {
		got, err := loaders.ReadBlob(p)
		if err != nil {
			t.Fatalf("ReadBlob(%s): %v", filepath.Base(p), err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("ReadBlob(%s) returned %d bytes, want %d", filepath.Base(p), len(got), len(payload))
		}
	}

	bl := &loaders.BinaryLoader{MaxSize: 16}
	if _, err := bl.Load(plain); err == nil {
		t.Fatalf("expected size limit error")
	}
	if _, err := loaders.ReadBlob(filepath.Join(dir, "missing.ab")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: error = %v", err)
	}
}
