package wasm

// Binary format magic number and version.
const (
	// Magic is "\0asm" read as a little-endian uint32.
	Magic uint32 = 0x6D736100

	// Version is the core module binary version.
	Version uint16 = 0x01

	// HeaderSize is magic plus version word.
	HeaderSize = 8
)

// LayerCore and LayerComponent are the values of the header layer field.
const (
	LayerCore      uint16 = 0x00
	LayerComponent uint16 = 0x01
)

// Section IDs. Sections must appear in increasing order by ID except custom sections.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
	SectionTag       byte = 13
)

// Import/export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// ValType is a core value type encoding.
type ValType byte

const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// FuncTypeByte prefixes a function type in the type section.
const FuncTypeByte byte = 0x60

// Opcodes used by Builder callers.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpEnd         byte = 0x0B
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpLocalGet    byte = 0x20
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
)

var sectionNames = [...]string{
	SectionCustom:    "custom",
	SectionType:      "type",
	SectionImport:    "import",
	SectionFunction:  "function",
	SectionTable:     "table",
	SectionMemory:    "memory",
	SectionGlobal:    "global",
	SectionExport:    "export",
	SectionStart:     "start",
	SectionElement:   "element",
	SectionCode:      "code",
	SectionData:      "data",
	SectionDataCount: "datacount",
	SectionTag:       "tag",
}

// SectionName returns the name of a section ID, or "unknown".
func SectionName(id byte) string {
	if int(id) < len(sectionNames) {
		return sectionNames[id]
	}
	return "unknown"
}
