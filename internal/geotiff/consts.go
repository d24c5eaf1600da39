package geotiff

// A TIFF file holds one or more Image File Directories (IFD). Each IFD entry
// is 12 bytes: tag, data type, value count, and either the value itself (when
// it fits in 4 bytes) or an offset to it. GeoTIFF adds three tags on top:
// pixel scale, tiepoints and a directory of GeoKeys.

const (
	leHeader    = "II\x2A\x00" // Header for little-endian files.
	beHeader    = "MM\x00\x2A" // Header for big-endian files.
	bigLEHeader = "II\x2B\x00" // BigTIFF, little-endian.
	bigBEHeader = "MM\x00\x2B" // BigTIFF, big-endian.

	headerLen = 8
	ifdLen    = 12 // Length of an IFD entry in bytes.
)

// Data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

// The length of one instance of each data type in bytes.
var lengths = [...]uint32{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8}

// Baseline and extension tags.
const (
	tImageWidth                = 256
	tImageLength               = 257
	tBitsPerSample             = 258
	tCompression               = 259
	tPhotometricInterpretation = 262

	tStripOffsets        = 273
	tSamplesPerPixel     = 277
	tRowsPerStrip        = 278
	tStripByteCounts     = 279
	tPlanarConfiguration = 284

	tPredictor    = 317
	tTileWidth    = 322
	tTileOffsets  = 324
	tExtraSamples = 338
	tSampleFormat = 339
)

// GeoTIFF tags.
const (
	tModelPixelScale     = 33550
	tModelTiepoint       = 33922
	tModelTransformation = 34264
	tGeoKeyDirectory     = 34735
)

// GeoKeys.
const (
	keyGTModelType       = 1024
	keyGTRasterType      = 1025
	keyGeographicType    = 2048
	keyProjectedCSType   = 3072
	modelTypeProjected   = 1
	modelTypeGeographic  = 2
	modelTypeGeocentric  = 3
	rasterPixelIsArea    = 1
	rasterPixelIsPoint   = 2
	geoKeyDirectoryMajor = 1
	geoKeyRevision       = 1
	geoKeyMinor          = 0
)

// Compression types.
const (
	cNone       = 1
	cDeflate    = 8
	cDeflateOld = 32946
)

// Photometric interpretation values.
const (
	pWhiteIsZero = 0
	pBlackIsZero = 1
	pRGB         = 2
)

// Sample formats.
const (
	sfUint  = 1
	sfInt   = 2
	sfFloat = 3
)

const (
	pcChunky = 1
	pcPlanar = 2
)
