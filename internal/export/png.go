package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zlib"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const colorTypeRGBA = 6

// encodePNG always writes colour type 6. image/png drops the alpha channel
// of fully opaque images, so those are written here instead.
func encodePNG(w io.Writer, img image.Image) error {
	nrgba := imaging.Clone(img)
	if !nrgba.Opaque() {
		return png.Encode(w, nrgba)
	}
	return writeRGBAPNG(w, nrgba)
}

func writeRGBAPNG(w io.Writer, img *image.NRGBA) error {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(pngSignature); err != nil {
		return err
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(height))
	ihdr[8] = 8 // bit depth
	ihdr[9] = colorTypeRGBA
	if err := writeChunk(bw, "IHDR", ihdr); err != nil {
		return err
	}

	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, zlib.DefaultCompression)
	if err != nil {
		return err
	}
	rowLen := width * 4
	row := make([]byte, 1+rowLen) // filter byte 0 (none), then pixels
	for y := 0; y < height; y++ {
		off := y * img.Stride
		copy(row[1:], img.Pix[off:off+rowLen])
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := writeChunk(bw, "IDAT", idat.Bytes()); err != nil {
		return err
	}
	if err := writeChunk(bw, "IEND", nil); err != nil {
		return err
	}
	return bw.Flush()
}

func writeChunk(w io.Writer, name string, data []byte) error {
	var head [8]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(len(data)))
	copy(head[4:], name)
	crc := crc32.NewIEEE()
	crc.Write(head[4:])
	crc.Write(data)

	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc.Sum32())
	for _, b := range [][]byte{head[:], data, tail[:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}
