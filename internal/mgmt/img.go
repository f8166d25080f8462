package mgmt

import (
	"encoding/hex"
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// Image group command IDs
const (
	CommandImageState    uint8 = 0
	CommandImageErase    uint8 = 5
	CommandImageSlotInfo uint8 = 6
)

const (
	imgModeStateGet uint8 = iota + 1
	imgModeStateSet
	imgModeErase
	imgModeSlotInfo
)

var imgCommands = map[uint8]command{
	imgModeStateGet: {CommandImageState, "Get state"},
	imgModeStateSet: {CommandImageState, "Set state"},
	imgModeErase:    {CommandImageErase, "Erase"},
	imgModeSlotInfo: {CommandImageSlotInfo, "Slot info"},
}

// ImageErrors lists the image group specific error codes.
var ImageErrors = smp.ErrorTable{
	{"FLASH_CONFIG_QUERY_FAIL", "Failed to query flash area configuration"},
	{"NO_IMAGE", "There is no image in the slot"},
	{"NO_TLVS", "The image in the slot has no TLVs (tag, length, value)"},
	{"INVALID_TLV", "The image in the slot has an invalid TLV type and/or length"},
	{"TLV_MULTIPLE_HASHES_FOUND", "The image in the slot has multiple hash TLVs, which is invalid"},
	{"TLV_INVALID_SIZE", "The image in the slot has an invalid TLV size"},
	{"HASH_NOT_FOUND", "The image in the slot does not have a hash TLV, which is required"},
	{"NO_FREE_SLOT", "There is no free slot to place the image"},
	{"FLASH_OPEN_FAILED", "Flash area opening failed"},
	{"FLASH_READ_FAILED", "Flash area reading failed"},
	{"FLASH_WRITE_FAILED", "Flash area writing failed"},
	{"FLASH_ERASE_FAILED", "Flash area erase failed"},
	{"INVALID_SLOT", "The provided slot is not valid"},
	{"NO_FREE_MEMORY", "Insufficient heap memory (malloc failed)"},
	{"FLASH_CONTEXT_ALREADY_SET", "The flash context is already set"},
	{"FLASH_CONTEXT_NOT_SET", "The flash context is not set"},
	{"FLASH_AREA_DEVICE_NULL", "The device for the flash area is NULL"},
	{"INVALID_PAGE_OFFSET", "The offset for a page number is invalid"},
	{"INVALID_OFFSET", "The offset parameter was not provided and is required"},
	{"INVALID_LENGTH", "The length parameter was not provided and is required"},
	{"INVALID_IMAGE_HEADER", "The image length is smaller than the size of an image header"},
	{"INVALID_IMAGE_HEADER_MAGIC", "The image header magic value does not match the expected value"},
	{"INVALID_HASH", "The hash parameter provided is not valid"},
	{"INVALID_FLASH_ADDRESS", "The image load address does not match the address of the flash area"},
	{"VERSION_GET_FAILED", "Failed to get version of currently running application"},
	{"CURRENT_VERSION_IS_NEWER", "The currently running application is newer than the version being uploaded"},
	{"IMAGE_ALREADY_PENDING", "There is already an image operating pending"},
	{"INVALID_IMAGE_VECTOR_TABLE", "The image vector table is invalid"},
	{"INVALID_IMAGE_TOO_LARGE", "The image it too large to fit"},
	{"INVALID_IMAGE_DATA_OVERRUN", "The amount of data sent is larger than the provided image size"},
}

// ImageSlot is the state of one image slot.
type ImageSlot struct {
	Image     uint64 `json:"image"`
	Slot      uint64 `json:"slot"`
	Version   string `json:"version"`
	Hash      []byte `json:"-"`
	HashHex   string `json:"hash"`
	Bootable  bool   `json:"bootable"`
	Pending   bool   `json:"pending"`
	Confirmed bool   `json:"confirmed"`
	Active    bool   `json:"active"`
	Permanent bool   `json:"permanent"`
}

// SlotInfo describes one slot of an image.
type SlotInfo struct {
	Slot          uint64 `json:"slot"`
	Size          uint64 `json:"size"`
	UploadImageID uint64 `json:"upload_image_id,omitempty"`
}

// ImageInfo is the slot information of one image.
type ImageInfo struct {
	Image        uint64     `json:"image"`
	Slots        []SlotInfo `json:"slots"`
	MaxImageSize uint64     `json:"max_image_size,omitempty"`
}

// Image implements the image management group.
type Image struct {
	*group
}

// NewImage creates the image group and registers it with p.
func NewImage(p *smp.Processor, opts ...Option) *Image {
	g := &Image{group: newGroup(p, smp.GroupImage, "img", ImageErrors, imgCommands, opts)}
	p.Register(smp.GroupImage, g)
	return g
}

// StartStateGet reads the state of all image slots.
func (g *Image) StartStateGet(slots *[]ImageSlot) error {
	if slots == nil {
		return fmt.Errorf("%w: slots", ErrMissingParameter)
	}
	if err := g.begin(imgModeStateGet, slots); err != nil {
		return err
	}
	*slots = (*slots)[:0]
	return g.send(g.message(smp.OpRead, CommandImageState))
}

// StartStateSet marks the image with hash for test boot, or confirms it
// when confirm is set. A nil hash with confirm set confirms the running
// image. The resulting slot states are stored in slots.
func (g *Image) StartStateSet(hash []byte, confirm bool, slots *[]ImageSlot) error {
	if len(hash) == 0 && !confirm {
		return fmt.Errorf("%w: hash", ErrMissingParameter)
	}
	if slots == nil {
		return fmt.Errorf("%w: slots", ErrMissingParameter)
	}
	if err := g.begin(imgModeStateSet, slots); err != nil {
		return err
	}
	*slots = (*slots)[:0]
	msg := g.message(smp.OpWrite, CommandImageState)
	w := msg.Writer()
	if len(hash) > 0 {
		w.BytesField("hash", hash)
	}
	w.BoolField("confirm", confirm)
	return g.send(msg)
}

// StartErase erases the given slot.
func (g *Image) StartErase(slot uint32) error {
	if err := g.begin(imgModeErase, nil); err != nil {
		return err
	}
	msg := g.message(smp.OpWrite, CommandImageErase)
	msg.Writer().UintField("slot", uint64(slot))
	return g.send(msg)
}

// StartSlotInfo reads the slot layout of every image.
func (g *Image) StartSlotInfo(images *[]ImageInfo) error {
	if images == nil {
		return fmt.Errorf("%w: images", ErrMissingParameter)
	}
	if err := g.begin(imgModeSlotInfo, images); err != nil {
		return err
	}
	*images = (*images)[:0]
	return g.send(g.message(smp.OpRead, CommandImageSlotInfo))
}

// ReceiveOK implements smp.Handler.
func (g *Image) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	switch mode {
	case imgModeStateGet, imgModeStateSet:
		err = decodeImageState(body, pending.(*[]ImageSlot))
	case imgModeSlotInfo:
		err = decodeSlotInfo(body, pending.(*[]ImageInfo))
	}
	g.complete(mode, err)
}

func decodeImageState(body []byte, slots *[]ImageSlot) error {
	var cur *ImageSlot
	flag := func(dst func(*ImageSlot) *bool) cbor.FieldFunc {
		return func(_ cbor.Context, ev cbor.Event) {
			if cur != nil && ev.Type == cbor.EventBool {
				*dst(cur) = ev.Bool
			}
		}
	}
	return cbor.Walk(body, cbor.NewFieldMap().
		OnIn("images", "image", 3, uintInto(&cur, func(s *ImageSlot) *uint64 { return &s.Image })).
		OnIn("images", "slot", 3, uintInto(&cur, func(s *ImageSlot) *uint64 { return &s.Slot })).
		OnIn("images", "version", 3, func(_ cbor.Context, ev cbor.Event) {
			if cur != nil && ev.Type == cbor.EventText {
				cur.Version = ev.Text()
			}
		}).
		OnIn("images", "hash", 3, func(_ cbor.Context, ev cbor.Event) {
			if cur != nil && ev.Type == cbor.EventBytes {
				cur.Hash = append([]byte(nil), ev.Data...)
				cur.HashHex = hex.EncodeToString(ev.Data)
			}
		}).
		OnIn("images", "bootable", 3, flag(func(s *ImageSlot) *bool { return &s.Bootable })).
		OnIn("images", "pending", 3, flag(func(s *ImageSlot) *bool { return &s.Pending })).
		OnIn("images", "confirmed", 3, flag(func(s *ImageSlot) *bool { return &s.Confirmed })).
		OnIn("images", "active", 3, flag(func(s *ImageSlot) *bool { return &s.Active })).
		OnIn("images", "permanent", 3, flag(func(s *ImageSlot) *bool { return &s.Permanent })).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ctx.Depth == 2 && ctx.InArray && ctx.Parent == "images" && ev.Type == cbor.EventMapStart {
				cur = &ImageSlot{}
			}
		}).
		OnLeave(func(ctx cbor.Context) {
			if ctx.Depth == 2 && ctx.InArray && ctx.Parent == "images" && cur != nil {
				*slots = append(*slots, *cur)
				cur = nil
			}
		}))
}

// decodeSlotInfo reads images[] maps at depth 3 and their slots[] maps at
// depth 5.
func decodeSlotInfo(body []byte, images *[]ImageInfo) error {
	var img *ImageInfo
	var slot *SlotInfo
	return cbor.Walk(body, cbor.NewFieldMap().
		OnIn("images", "image", 3, uintInto(&img, func(i *ImageInfo) *uint64 { return &i.Image })).
		OnIn("images", "max_image_size", 3, uintInto(&img, func(i *ImageInfo) *uint64 { return &i.MaxImageSize })).
		OnIn("slots", "slot", 5, uintInto(&slot, func(s *SlotInfo) *uint64 { return &s.Slot })).
		OnIn("slots", "size", 5, uintInto(&slot, func(s *SlotInfo) *uint64 { return &s.Size })).
		OnIn("slots", "upload_image_id", 5, uintInto(&slot, func(s *SlotInfo) *uint64 { return &s.UploadImageID })).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ev.Type != cbor.EventMapStart || !ctx.InArray {
				return
			}
			switch {
			case ctx.Depth == 2 && ctx.Parent == "images":
				img = &ImageInfo{}
			case ctx.Depth == 4 && ctx.Parent == "slots" && img != nil:
				slot = &SlotInfo{}
			}
		}).
		OnLeave(func(ctx cbor.Context) {
			if !ctx.InArray {
				return
			}
			switch {
			case ctx.Depth == 2 && ctx.Parent == "images" && img != nil:
				*images = append(*images, *img)
				img = nil
			case ctx.Depth == 4 && ctx.Parent == "slots" && slot != nil:
				img.Slots = append(img.Slots, *slot)
				slot = nil
			}
		}))
}
