package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// DefaultMaxSamples is the sample limit used by Decode: 2 GiB of float64
// bands.
const DefaultMaxSamples = 1 << 28

type decoder struct {
	buf        []byte
	bo         binary.ByteOrder
	maxSamples uint64
	ints       map[uint16][]uint64
	doubles    map[uint16][]float64
}

// Decode reads a TIFF from r. Every sample is converted to float64.
func Decode(r io.Reader) (*Image, error) {
	return DecodeLimited(r, DefaultMaxSamples)
}

// DecodeLimited is Decode with a bound on width*height*samples. Larger
// images are reported with ErrTooLarge.
func DecodeLimited(r io.Reader, maxSamples int) (*Image, error) {
	if maxSamples <= 0 {
		return nil, fmt.Errorf("geotiff: invalid sample limit %d", maxSamples)
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	d := &decoder{
		buf:        buf,
		maxSamples: uint64(maxSamples),
		ints:       make(map[uint16][]uint64),
		doubles:    make(map[uint16][]float64),
	}
	if err := d.readIFD(); err != nil {
		return nil, err
	}
	return d.decode()
}

func (d *decoder) readIFD() error {
	if len(d.buf) < headerLen {
		return ErrNotTIFF
	}
	switch string(d.buf[0:4]) {
	case leHeader:
		d.bo = binary.LittleEndian
	case beHeader:
		d.bo = binary.BigEndian
	case bigLEHeader, bigBEHeader:
		return unsupported("BigTIFF")
	default:
		return ErrNotTIFF
	}

	ifdOff := uint64(d.bo.Uint32(d.buf[4:8]))
	if ifdOff+2 > uint64(len(d.buf)) {
		return FormatError("IFD offset out of range")
	}
	n := uint64(d.bo.Uint16(d.buf[ifdOff:]))
	if ifdOff+2+n*ifdLen > uint64(len(d.buf)) {
		return FormatError("IFD extends past end of file")
	}
	for i := uint64(0); i < n; i++ {
		p := ifdOff + 2 + i*ifdLen
		if err := d.readEntry(d.buf[p : p+ifdLen]); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) readEntry(p []byte) error {
	tag := d.bo.Uint16(p[0:2])
	typ := d.bo.Uint16(p[2:4])
	count := uint64(d.bo.Uint32(p[4:8]))
	if typ == 0 || int(typ) >= len(lengths) {
		// Readers must skip unknown field types (TIFF 6.0, section 2).
		return nil
	}
	size := count * uint64(lengths[typ])
	var raw []byte
	if size <= 4 {
		raw = p[8 : 8+size]
	} else {
		off := uint64(d.bo.Uint32(p[8:12]))
		if off+size > uint64(len(d.buf)) {
			return FormatError(fmt.Sprintf("tag %d data out of range", tag))
		}
		raw = d.buf[off : off+size]
	}

	switch typ {
	case dtByte, dtUndefined:
		v := make([]uint64, count)
		for i := range v {
			v[i] = uint64(raw[i])
		}
		d.ints[tag] = v
	case dtShort:
		v := make([]uint64, count)
		for i := range v {
			v[i] = uint64(d.bo.Uint16(raw[2*i:]))
		}
		d.ints[tag] = v
	case dtLong:
		v := make([]uint64, count)
		for i := range v {
			v[i] = uint64(d.bo.Uint32(raw[4*i:]))
		}
		d.ints[tag] = v
	case dtDouble:
		v := make([]float64, count)
		for i := range v {
			v[i] = math.Float64frombits(d.bo.Uint64(raw[8*i:]))
		}
		d.doubles[tag] = v
	}
	return nil
}

func (d *decoder) first(tag uint16, def uint64) uint64 {
	if v := d.ints[tag]; len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *decoder) decode() (*Image, error) {
	width := int(d.first(tImageWidth, 0))
	height := int(d.first(tImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, FormatError("missing image dimensions")
	}
	samples := int(d.first(tSamplesPerPixel, 1))
	if samples < 1 {
		return nil, FormatError("invalid samples per pixel")
	}
	if uint64(width)*uint64(height)*uint64(samples) > d.maxSamples {
		return nil, fmt.Errorf("%w: %dx%dx%d samples", ErrTooLarge, width, height, samples)
	}

	if _, ok := d.ints[tTileOffsets]; ok {
		return nil, unsupported("tiled layout")
	}
	if p := d.first(tPredictor, 1); p != 1 {
		return nil, unsupported("predictor %d", p)
	}
	switch ph := d.first(tPhotometricInterpretation, pBlackIsZero); ph {
	case pWhiteIsZero, pBlackIsZero, pRGB:
	default:
		return nil, unsupported("photometric interpretation %d", ph)
	}
	compression := d.first(tCompression, cNone)
	switch compression {
	case cNone, cDeflate, cDeflateOld:
	default:
		return nil, unsupported("compression %d", compression)
	}

	bits := d.ints[tBitsPerSample]
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return nil, unsupported("mixed bits per sample")
		}
	}
	format := int(d.first(tSampleFormat, sfUint))
	sample, err := sampleReader(format, int(bits[0]), d.bo)
	if err != nil {
		return nil, err
	}
	bps := int(bits[0]) / 8

	planar := d.first(tPlanarConfiguration, pcChunky)
	if planar != pcChunky && planar != pcPlanar {
		return nil, unsupported("planar configuration %d", planar)
	}
	rowsPerStrip := int(d.first(tRowsPerStrip, uint64(height)))
	if rowsPerStrip <= 0 || rowsPerStrip > height {
		rowsPerStrip = height
	}
	stripsPerImage := (height + rowsPerStrip - 1) / rowsPerStrip
	want := stripsPerImage
	if planar == pcPlanar {
		want *= samples
	}
	offsets, counts := d.ints[tStripOffsets], d.ints[tStripByteCounts]
	if len(offsets) != want || len(counts) != want {
		return nil, FormatError(fmt.Sprintf("expected %d strips, got %d offsets and %d byte counts", want, len(offsets), len(counts)))
	}

	// Strips are located and inflated before any band is allocated, so the
	// header alone cannot size the allocation.
	type stripData struct {
		plane, row0, rows int
		data              []byte
	}
	strips := make([]stripData, want)
	for s := 0; s < want; s++ {
		plane, strip := 0, s
		if planar == pcPlanar {
			plane, strip = s/stripsPerImage, s%stripsPerImage
		}
		row0 := strip * rowsPerStrip
		rows := min(rowsPerStrip, height-row0)
		need := rows * width * bps
		if planar == pcChunky {
			need *= samples
		}

		data, err := d.strip(offsets[s], counts[s], compression, need)
		if err != nil {
			return nil, err
		}
		strips[s] = stripData{plane: plane, row0: row0, rows: rows, data: data}
	}

	img := &Image{
		Width:  width,
		Height: height,
		Bands:  make([][]float64, samples),
	}
	for i := range img.Bands {
		img.Bands[i] = make([]float64, width*height)
	}

	for _, st := range strips {
		n := st.rows * width
		if planar == pcChunky {
			for i := 0; i < n; i++ {
				for b := 0; b < samples; b++ {
					img.Bands[b][st.row0*width+i] = sample(st.data[(i*samples+b)*bps:])
				}
			}
		} else {
			for i := 0; i < n; i++ {
				img.Bands[st.plane][st.row0*width+i] = sample(st.data[i*bps:])
			}
		}
	}

	img.Georef = d.georef()
	return img, nil
}

// strip returns the decoded bytes of one strip, which must hold at least
// need bytes. Deflate strips may not inflate past need.
func (d *decoder) strip(off, count, compression uint64, need int) ([]byte, error) {
	if off+count > uint64(len(d.buf)) {
		return nil, FormatError("strip out of range")
	}
	raw := d.buf[off : off+count]
	if compression == cNone {
		if len(raw) < need {
			return nil, FormatError("short strip")
		}
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("geotiff: inflate strip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(need)+1))
	if err != nil {
		return nil, fmt.Errorf("geotiff: inflate strip: %w", err)
	}
	switch {
	case len(out) < need:
		return nil, FormatError("short strip")
	case len(out) > need:
		return nil, FormatError("strip inflates past its declared size")
	}
	return out, nil
}

func sampleReader(format, bits int, bo binary.ByteOrder) (func([]byte) float64, error) {
	switch {
	case format == sfUint && bits == 8:
		return func(b []byte) float64 { return float64(b[0]) }, nil
	case format == sfUint && bits == 16:
		return func(b []byte) float64 { return float64(bo.Uint16(b)) }, nil
	case format == sfUint && bits == 32:
		return func(b []byte) float64 { return float64(bo.Uint32(b)) }, nil
	case format == sfInt && bits == 8:
		return func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case format == sfInt && bits == 16:
		return func(b []byte) float64 { return float64(int16(bo.Uint16(b))) }, nil
	case format == sfInt && bits == 32:
		return func(b []byte) float64 { return float64(int32(bo.Uint32(b))) }, nil
	case format == sfFloat && bits == 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(bo.Uint32(b))) }, nil
	case format == sfFloat && bits == 64:
		return func(b []byte) float64 { return math.Float64frombits(bo.Uint64(b)) }, nil
	}
	return nil, unsupported("sample format %d with %d bits", format, bits)
}

// georef returns nil unless the file carries both a pixel scale and a
// tiepoint.
func (d *decoder) georef() *Georef {
	scale, tie := d.doubles[tModelPixelScale], d.doubles[tModelTiepoint]
	if len(scale) < 2 || len(tie) < 6 || scale[0] == 0 || scale[1] == 0 {
		return nil
	}
	g := &Georef{
		ScaleX:  scale[0],
		ScaleY:  scale[1],
		OriginX: tie[3] - tie[0]*scale[0],
		OriginY: tie[4] + tie[1]*scale[1],
	}

	keys := d.ints[tGeoKeyDirectory]
	if len(keys) < 4 {
		return g
	}
	n := int(keys[3])
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		k := keys[4+4*i : 4+4*i+4]
		if k[1] != 0 {
			// Value stored in another tag; none of the keys we read use that.
			continue
		}
		switch k[0] {
		case keyGeographicType, keyProjectedCSType:
			g.EPSG = int(k[3])
		case keyGTRasterType:
			if k[3] == rasterPixelIsPoint {
				g.OriginX -= g.ScaleX / 2
				g.OriginY += g.ScaleY / 2
			}
		}
	}
	return g
}
