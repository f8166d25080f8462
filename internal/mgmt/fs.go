package mgmt

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// Filesystem group command IDs
const (
	CommandFileStatus          uint8 = 1
	CommandFileHash            uint8 = 2
	CommandFileSupportedHashes uint8 = 3
	CommandFileClose           uint8 = 4
)

const (
	fsModeStatus uint8 = iota + 1
	fsModeHash
	fsModeSupportedHashes
	fsModeClose
)

var fsCommands = map[uint8]command{
	fsModeStatus:          {CommandFileStatus, "Status"},
	fsModeHash:            {CommandFileHash, "Hash/checksum"},
	fsModeSupportedHashes: {CommandFileSupportedHashes, "Supported hashes/checksums"},
	fsModeClose:           {CommandFileClose, "File close"},
}

// FSErrors lists the filesystem group specific error codes.
var FSErrors = smp.ErrorTable{
	{"FILE_INVALID_NAME", "The specified file name is not valid"},
	{"FILE_NOT_FOUND", "The specified file does not exist"},
	{"FILE_IS_DIRECTORY", "The specified file is a directory, not a file"},
	{"FILE_OPEN_FAILED", "Error occurred whilst attempting to open a file"},
	{"FILE_SEEK_FAILED", "Error occurred whilst attempting to seek to an offset in a file"},
	{"FILE_READ_FAILED", "Error occurred whilst attempting to read data from a file"},
	{"FILE_TRUNCATE_FAILED", "Error occurred whilst trying to truncate file"},
	{"FILE_DELETE_FAILED", "Error occurred whilst trying to delete file"},
	{"FILE_WRITE_FAILED", "Error occurred whilst attempting to write data to a file"},
	{"FILE_OFFSET_NOT_VALID", "Specified data offset is not valid"},
	{"FILE_OFFSET_LARGER_THAN_FILE", "The requested offset is larger than the size of the file on the device"},
	{"CHECKSUM_HASH_NOT_FOUND", "The requested checksum or hash type was not found or is not supported by this build"},
}

// Hash output formats reported by the device
const (
	HashFormatNumerical  uint64 = 0
	HashFormatByteString uint64 = 1
)

// FileHash is the result of a hash/checksum command.
type FileHash struct {
	Type   string `json:"type"`
	Offset uint64 `json:"off"`
	Length uint64 `json:"len"`
	// Output holds a byte string hash; checksums reported as numbers are
	// stored in Checksum instead.
	Output   []byte `json:"-"`
	Checksum uint64 `json:"checksum,omitempty"`
	Hex      string `json:"output"`
}

// HashType is one supported hash or checksum.
type HashType struct {
	Name   string `json:"name"`
	Format uint64 `json:"format"`
	Size   uint64 `json:"size"`
}

// FS implements the filesystem management group.
type FS struct {
	*group
}

// NewFS creates the filesystem group and registers it with p.
func NewFS(p *smp.Processor, opts ...Option) *FS {
	g := &FS{group: newGroup(p, smp.GroupFS, "fs", FSErrors, fsCommands, opts)}
	p.Register(smp.GroupFS, g)
	return g
}

// StartStatus reads the size of the file at path.
func (g *FS) StartStatus(path string, size *uint64) error {
	if path == "" {
		return fmt.Errorf("%w: path", ErrMissingParameter)
	}
	if size == nil {
		return fmt.Errorf("%w: size", ErrMissingParameter)
	}
	if err := g.begin(fsModeStatus, size); err != nil {
		return err
	}
	*size = 0
	msg := g.message(smp.OpRead, CommandFileStatus)
	msg.Writer().TextField("name", path)
	return g.send(msg)
}

// StartHash computes a hash or checksum of the file at path. An empty
// hashType leaves the device default; length 0 covers the whole file.
func (g *FS) StartHash(path, hashType string, offset, length uint64, result *FileHash) error {
	if path == "" {
		return fmt.Errorf("%w: path", ErrMissingParameter)
	}
	if result == nil {
		return fmt.Errorf("%w: result", ErrMissingParameter)
	}
	if err := g.begin(fsModeHash, result); err != nil {
		return err
	}
	*result = FileHash{}
	msg := g.message(smp.OpRead, CommandFileHash)
	w := msg.Writer()
	w.TextField("name", path)
	if hashType != "" {
		w.TextField("type", hashType)
	}
	if offset > 0 {
		w.UintField("off", offset)
	}
	if length > 0 {
		w.UintField("len", length)
	}
	return g.send(msg)
}

// StartSupportedHashes lists the hash and checksum types the device
// supports, sorted by name.
func (g *FS) StartSupportedHashes(types *[]HashType) error {
	if types == nil {
		return fmt.Errorf("%w: types", ErrMissingParameter)
	}
	if err := g.begin(fsModeSupportedHashes, types); err != nil {
		return err
	}
	*types = (*types)[:0]
	return g.send(g.message(smp.OpRead, CommandFileSupportedHashes))
}

// StartClose closes any file the device holds open for upload or download.
func (g *FS) StartClose() error {
	if err := g.begin(fsModeClose, nil); err != nil {
		return err
	}
	return g.send(g.message(smp.OpWrite, CommandFileClose))
}

// ReceiveOK implements smp.Handler.
func (g *FS) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	switch mode {
	case fsModeStatus:
		err = decodeRequired(body, "len", 1, cbor.EventUint, cbor.SetUint(pending.(*uint64)))
	case fsModeHash:
		err = decodeFileHash(body, pending.(*FileHash))
	case fsModeSupportedHashes:
		err = decodeHashTypes(body, pending.(*[]HashType))
	}
	g.complete(mode, err)
}

func decodeFileHash(body []byte, res *FileHash) error {
	var found bool
	err := cbor.Walk(body, cbor.NewFieldMap().
		OnAt("type", 1, cbor.SetText(&res.Type)).
		OnAt("off", 1, cbor.SetUint(&res.Offset)).
		OnAt("len", 1, cbor.SetUint(&res.Length)).
		OnAt("output", 1, func(_ cbor.Context, ev cbor.Event) {
			switch ev.Type {
			case cbor.EventBytes:
				res.Output = append([]byte(nil), ev.Data...)
				res.Hex = hex.EncodeToString(ev.Data)
				found = true
			case cbor.EventUint:
				res.Checksum = ev.Uint
				res.Hex = fmt.Sprintf("%08x", ev.Uint)
				found = true
			}
		}))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: output", ErrMissingField)
	}
	return nil
}

func decodeHashTypes(body []byte, types *[]HashType) error {
	var cur *HashType
	err := cbor.Walk(body, cbor.NewFieldMap().
		OnAt("format", 3, uintInto(&cur, func(h *HashType) *uint64 { return &h.Format })).
		OnAt("size", 3, uintInto(&cur, func(h *HashType) *uint64 { return &h.Size })).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ctx.Depth == 2 && ctx.Parent == "types" && ev.Type == cbor.EventMapStart {
				cur = &HashType{Name: ctx.Key}
			}
		}).
		OnLeave(func(ctx cbor.Context) {
			if ctx.Depth == 2 && ctx.Parent == "types" && cur != nil {
				*types = append(*types, *cur)
				cur = nil
			}
		}))
	sort.Slice(*types, func(i, j int) bool { return (*types)[i].Name < (*types)[j].Name })
	return err
}
