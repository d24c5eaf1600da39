package geotiff

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

var enc = binary.LittleEndian

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortEntry(tag uint16, vals ...uint16) entry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		enc.PutUint16(b[2*i:], v)
	}
	return entry{tag: tag, typ: dtShort, count: uint32(len(vals)), data: b}
}

func longEntry(tag uint16, vals ...uint32) entry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		enc.PutUint32(b[4*i:], v)
	}
	return entry{tag: tag, typ: dtLong, count: uint32(len(vals)), data: b}
}

func doubleEntry(tag uint16, vals ...float64) entry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		enc.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: dtDouble, count: uint32(len(vals)), data: b}
}

func repeat(v uint16, n int) []uint16 {
	s := make([]uint16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// geocentric lists the EPSG codes of the 4000s that are earth-centred
// cartesian rather than latitude/longitude references.
var geocentric = map[int]bool{
	4328: true, // WGS 84 (deprecated geocentric code)
	4936: true, // ETRS89
	4978: true, // WGS 84
	4984: true, // WGS 72
}

// geoKeys builds the GeoKeyDirectory for an EPSG code. Codes in the 4000s
// are geographic (lat/lon) references unless listed in geocentric; anything
// else is treated as projected. Geocentric codes are stored in the
// GeographicType key, which only names the datum, so readers without
// geocentric support may mistake them for geographic ones.
func geoKeys(epsg int) []uint16 {
	keys := [][4]uint16{}
	if epsg > 0 {
		model, csKey := uint16(modelTypeProjected), uint16(keyProjectedCSType)
		switch {
		case geocentric[epsg]:
			model, csKey = modelTypeGeocentric, keyGeographicType
		case epsg >= 4000 && epsg < 5000:
			model, csKey = modelTypeGeographic, keyGeographicType
		}
		keys = append(keys,
			[4]uint16{keyGTModelType, 0, 1, model},
			[4]uint16{keyGTRasterType, 0, 1, rasterPixelIsArea},
			[4]uint16{csKey, 0, 1, uint16(epsg)},
		)
	} else {
		keys = append(keys, [4]uint16{keyGTRasterType, 0, 1, rasterPixelIsArea})
	}
	out := []uint16{geoKeyDirectoryMajor, geoKeyRevision, geoKeyMinor, uint16(len(keys))}
	for _, k := range keys {
		out = append(out, k[:]...)
	}
	return out
}

// Encode writes img as a little-endian, uncompressed, single-strip TIFF with
// 64-bit IEEE float samples. Bands are interleaved per pixel. No overviews
// are written.
func Encode(w io.Writer, img *Image) error {
	if err := img.validate(); err != nil {
		return err
	}
	n := len(img.Bands)
	pixBytes := uint64(img.Width) * uint64(img.Height) * uint64(n) * 8
	if pixBytes > math.MaxUint32-(1<<16) {
		return fmt.Errorf("geotiff: image too large (%d bytes)", pixBytes)
	}

	entries := []entry{
		longEntry(tImageWidth, uint32(img.Width)),
		longEntry(tImageLength, uint32(img.Height)),
		shortEntry(tBitsPerSample, repeat(64, n)...),
		shortEntry(tCompression, cNone),
		shortEntry(tPhotometricInterpretation, pBlackIsZero),
		longEntry(tStripOffsets, 0),
		shortEntry(tSamplesPerPixel, uint16(n)),
		longEntry(tRowsPerStrip, uint32(img.Height)),
		longEntry(tStripByteCounts, uint32(pixBytes)),
		shortEntry(tPlanarConfiguration, pcChunky),
		shortEntry(tSampleFormat, repeat(sfFloat, n)...),
	}
	if n > 1 {
		entries = append(entries, shortEntry(tExtraSamples, repeat(0, n-1)...))
	}
	if g := img.Georef; g != nil {
		entries = append(entries,
			doubleEntry(tModelPixelScale, g.ScaleX, g.ScaleY, 0),
			doubleEntry(tModelTiepoint, 0, 0, 0, g.OriginX, g.OriginY, 0),
			shortEntry(tGeoKeyDirectory, geoKeys(g.EPSG)...),
		)
	}
	return writeFile(w, entries, func(bw *bufio.Writer) error {
		var px [8]byte
		for i := 0; i < img.Width*img.Height; i++ {
			for _, band := range img.Bands {
				enc.PutUint64(px[:], math.Float64bits(band[i]))
				if _, err := bw.Write(px[:]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// writeFile lays out header, IFD, out-of-line values and pixel data, in that
// order. Strip offsets are filled in from the strip byte counts, so strips
// must be written back to back by pixels.
func writeFile(w io.Writer, entries []entry, pixels func(*bufio.Writer) error) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdOff := uint32(headerLen)
	off := ifdOff + 2 + uint32(len(entries))*ifdLen + 4
	valueOff := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			valueOff[i] = off
			off += uint32(len(e.data))
		}
	}
	var counts []byte
	for _, e := range entries {
		if e.tag == tStripByteCounts {
			counts = e.data
		}
	}
	for _, e := range entries {
		if e.tag != tStripOffsets {
			continue
		}
		pos := off
		for i := 0; i+4 <= len(e.data) && i+4 <= len(counts); i += 4 {
			enc.PutUint32(e.data[i:], pos)
			pos += enc.Uint32(counts[i:])
		}
	}

	bw := bufio.NewWriter(w)
	var b [ifdLen]byte
	copy(b[:4], leHeader)
	enc.PutUint32(b[4:8], ifdOff)
	if _, err := bw.Write(b[:headerLen]); err != nil {
		return err
	}
	enc.PutUint16(b[:2], uint16(len(entries)))
	if _, err := bw.Write(b[:2]); err != nil {
		return err
	}
	for i, e := range entries {
		b = [ifdLen]byte{}
		enc.PutUint16(b[0:2], e.tag)
		enc.PutUint16(b[2:4], e.typ)
		enc.PutUint32(b[4:8], e.count)
		if len(e.data) > 4 {
			enc.PutUint32(b[8:12], valueOff[i])
		} else {
			copy(b[8:12], e.data)
		}
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	// No next IFD.
	enc.PutUint32(b[:4], 0)
	if _, err := bw.Write(b[:4]); err != nil {
		return err
	}
	for _, e := range entries {
		if len(e.data) > 4 {
			if _, err := bw.Write(e.data); err != nil {
				return err
			}
		}
	}
	if err := pixels(bw); err != nil {
		return err
	}
	return bw.Flush()
}
