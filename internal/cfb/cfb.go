// Package cfb writes OLE2 compound files (the container format QCN
// snapshots are stored in): version 3, 512-byte sectors, 64-byte mini
// sectors, mini cutoff 4096. Reading is delegated to
// github.com/richardlehane/mscfb; no maintained Go writer exists, so the
// write side lives here.
package cfb

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/vtsingaras/orct/internal/common/errors"
)

const (
	sectorSize     = 512
	miniSectorSize = 64
	miniCutoff     = 4096

	fatEntriesPerSector   = sectorSize / 4
	difatEntriesPerSector = fatEntriesPerSector - 1
	headerDifatEntries    = 109
	dirEntrySize          = 128

	secFree      = 0xFFFFFFFF
	secEndChain  = 0xFFFFFFFE
	secFat       = 0xFFFFFFFD
	secDifat     = 0xFFFFFFFC
	noStream     = 0xFFFFFFFF
	maxNameRunes = 31

	typeEmpty   = 0
	typeStorage = 1
	typeStream  = 2
	typeRoot    = 5

	colorBlack = 1
)

// Storage is a directory node in the compound file tree.
type Storage struct {
	name     string
	storages []*Storage
	streams  []*stream
}

type stream struct {
	name string
	data []byte
}

// Writer accumulates a compound file tree and serialises it.
type Writer struct {
	root Storage
}

// NewWriter returns a writer with an empty root storage.
func NewWriter() *Writer {
	return &Writer{root: Storage{name: "Root Entry"}}
}

// Root returns the root storage.
func (w *Writer) Root() *Storage {
	return &w.root
}

// AddStorage creates (or returns an existing) child storage.
func (s *Storage) AddStorage(name string) *Storage {
	for _, child := range s.storages {
		if child.name == name {
			return child
		}
	}
	child := &Storage{name: name}
	s.storages = append(s.storages, child)
	return child
}

// AddStream creates a stream document under the storage.
func (s *Storage) AddStream(name string, data []byte) {
	s.streams = append(s.streams, &stream{name: name, data: data})
}

// dirEntry is one 128-byte directory entry being laid out.
type dirEntry struct {
	name        string
	objType     byte
	left, right uint32
	child       uint32
	startSector uint32
	size        uint64
	data        []byte
	mini        bool
}

// WriteTo serialises the compound file.
func (w *Writer) WriteTo(out io.Writer) error {
	entries, err := w.buildDirectory()
	if err != nil {
		return err
	}

	// Partition stream payloads between the ministream and regular sectors.
	var miniStream []byte
	var miniFat []uint32
	for _, e := range entries {
		if e.objType != typeStream {
			continue
		}
		if len(e.data) == 0 {
			e.startSector = secEndChain
			continue
		}
		if len(e.data) < miniCutoff {
			e.mini = true
			first := uint32(len(miniFat))
			nMini := (len(e.data) + miniSectorSize - 1) / miniSectorSize
			for i := 1; i < nMini; i++ {
				miniFat = append(miniFat, first+uint32(i))
			}
			miniFat = append(miniFat, secEndChain)
			e.startSector = first
			miniStream = append(miniStream, pad(e.data, miniSectorSize)...)
		}
	}

	dirSectors := sectorCount(len(entries)*dirEntrySize, sectorSize)
	if dirSectors == 0 {
		dirSectors = 1
	}
	miniFatSectors := sectorCount(len(miniFat)*4, sectorSize)
	miniStreamSectors := sectorCount(len(miniStream), sectorSize)

	regSectors := 0
	for _, e := range entries {
		if e.objType == typeStream && !e.mini {
			regSectors += sectorCount(len(e.data), sectorSize)
		}
	}

	// The FAT describes every sector including the FAT and DIFAT sectors
	// themselves; iterate until the counts settle.
	base := dirSectors + miniFatSectors + miniStreamSectors + regSectors
	fatSectors, difatSectors := 1, 0
	for {
		total := base + fatSectors + difatSectors
		nf := sectorCount(total*4, sectorSize)
		nd := 0
		if nf > headerDifatEntries {
			nd = sectorCount((nf-headerDifatEntries)*4, difatEntriesPerSector*4)
		}
		if nf == fatSectors && nd == difatSectors {
			break
		}
		fatSectors, difatSectors = nf, nd
	}
	totalSectors := base + fatSectors + difatSectors

	// Sector map: [DIFAT][FAT][directory][miniFAT][ministream][streams].
	difatStart := uint32(0)
	fatStart := uint32(difatSectors)
	dirStart := fatStart + uint32(fatSectors)
	miniFatStart := dirStart + uint32(dirSectors)
	miniStreamStart := miniFatStart + uint32(miniFatSectors)
	streamStart := miniStreamStart + uint32(miniStreamSectors)

	fat := make([]uint32, totalSectors)
	for i := range fat {
		fat[i] = secFree
	}
	for i := 0; i < difatSectors; i++ {
		fat[int(difatStart)+i] = secDifat
	}
	for i := 0; i < fatSectors; i++ {
		fat[int(fatStart)+i] = secFat
	}
	chain(fat, dirStart, dirSectors)
	chain(fat, miniFatStart, miniFatSectors)
	chain(fat, miniStreamStart, miniStreamSectors)

	next := streamStart
	for _, e := range entries {
		if e.objType != typeStream || e.mini || len(e.data) == 0 {
			continue
		}
		n := sectorCount(len(e.data), sectorSize)
		e.startSector = next
		chain(fat, next, n)
		next += uint32(n)
	}

	// Root entry owns the ministream.
	root := entries[0]
	if miniStreamSectors > 0 {
		root.startSector = miniStreamStart
		root.size = uint64(len(miniStream))
	} else {
		root.startSector = secEndChain
	}

	// Header.
	header := make([]byte, sectorSize)
	copy(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le := binary.LittleEndian
	le.PutUint16(header[24:], 0x003E) // minor version
	le.PutUint16(header[26:], 0x0003) // major version 3
	le.PutUint16(header[28:], 0xFFFE) // byte order
	le.PutUint16(header[30:], 9)      // sector shift
	le.PutUint16(header[32:], 6)      // mini sector shift
	le.PutUint32(header[44:], uint32(fatSectors))
	le.PutUint32(header[48:], dirStart)
	le.PutUint32(header[56:], miniCutoff)
	if miniFatSectors > 0 {
		le.PutUint32(header[60:], miniFatStart)
	} else {
		le.PutUint32(header[60:], secEndChain)
	}
	le.PutUint32(header[64:], uint32(miniFatSectors))
	if difatSectors > 0 {
		le.PutUint32(header[68:], difatStart)
	} else {
		le.PutUint32(header[68:], secEndChain)
	}
	le.PutUint32(header[72:], uint32(difatSectors))
	for i := 0; i < headerDifatEntries; i++ {
		v := uint32(secFree)
		if i < fatSectors {
			v = fatStart + uint32(i)
		}
		le.PutUint32(header[76+4*i:], v)
	}
	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrIO, err)
	}

	// DIFAT sectors carry FAT sector ids 109 onward.
	for i := 0; i < difatSectors; i++ {
		sec := make([]byte, sectorSize)
		for j := 0; j < difatEntriesPerSector; j++ {
			idx := headerDifatEntries + i*difatEntriesPerSector + j
			v := uint32(secFree)
			if idx < fatSectors {
				v = fatStart + uint32(idx)
			}
			le.PutUint32(sec[4*j:], v)
		}
		nextDifat := uint32(secEndChain)
		if i+1 < difatSectors {
			nextDifat = difatStart + uint32(i+1)
		}
		le.PutUint32(sec[sectorSize-4:], nextDifat)
		if _, err := out.Write(sec); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrIO, err)
		}
	}

	// FAT sectors.
	fatBytes := make([]byte, fatSectors*sectorSize)
	for i := range fatBytes {
		fatBytes[i] = 0xFF
	}
	for i, v := range fat {
		le.PutUint32(fatBytes[4*i:], v)
	}
	if _, err := out.Write(fatBytes); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrIO, err)
	}

	// Directory sectors.
	dirBytes := make([]byte, dirSectors*sectorSize)
	for i := dirEntrySize * len(entries); i < len(dirBytes); i += dirEntrySize {
		writeEmptyEntry(dirBytes[i : i+dirEntrySize])
	}
	for i, e := range entries {
		if err := writeEntry(dirBytes[i*dirEntrySize:(i+1)*dirEntrySize], e); err != nil {
			return err
		}
	}
	if _, err := out.Write(dirBytes); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrIO, err)
	}

	// MiniFAT sectors.
	if miniFatSectors > 0 {
		miniFatBytes := make([]byte, miniFatSectors*sectorSize)
		for i := range miniFatBytes {
			miniFatBytes[i] = 0xFF
		}
		for i, v := range miniFat {
			le.PutUint32(miniFatBytes[4*i:], v)
		}
		if _, err := out.Write(miniFatBytes); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrIO, err)
		}
	}

	// Ministream sectors.
	if miniStreamSectors > 0 {
		if _, err := out.Write(pad(miniStream, sectorSize)); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrIO, err)
		}
	}

	// Regular stream sectors.
	for _, e := range entries {
		if e.objType != typeStream || e.mini || len(e.data) == 0 {
			continue
		}
		if _, err := out.Write(pad(e.data, sectorSize)); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrIO, err)
		}
	}
	return nil
}

// buildDirectory flattens the storage tree into directory entries with
// sibling trees wired up in compound-file name order.
func (w *Writer) buildDirectory() ([]*dirEntry, error) {
	entries := []*dirEntry{{
		name:        w.root.name,
		objType:     typeRoot,
		left:        noStream,
		right:       noStream,
		child:       noStream,
		startSector: secEndChain,
	}}
	child, err := addChildren(&entries, &w.root)
	if err != nil {
		return nil, err
	}
	entries[0].child = child
	return entries, nil
}

// addChildren appends entries for a storage's children and returns the id
// of the sibling-tree root, or noStream when the storage is empty.
func addChildren(entries *[]*dirEntry, s *Storage) (uint32, error) {
	type childRef struct {
		entry   *dirEntry
		id      uint32
		storage *Storage
	}
	var children []childRef

	for _, st := range s.storages {
		if err := checkName(st.name); err != nil {
			return noStream, err
		}
		e := &dirEntry{
			name: st.name, objType: typeStorage,
			left: noStream, right: noStream, child: noStream,
			startSector: secEndChain,
		}
		id := uint32(len(*entries))
		*entries = append(*entries, e)
		children = append(children, childRef{entry: e, id: id, storage: st})
	}
	for _, doc := range s.streams {
		if err := checkName(doc.name); err != nil {
			return noStream, err
		}
		e := &dirEntry{
			name: doc.name, objType: typeStream,
			left: noStream, right: noStream, child: noStream,
			data: doc.data, size: uint64(len(doc.data)),
			startSector: secEndChain,
		}
		id := uint32(len(*entries))
		*entries = append(*entries, e)
		children = append(children, childRef{entry: e, id: id})
	}

	for _, c := range children {
		if c.storage == nil {
			continue
		}
		child, err := addChildren(entries, c.storage)
		if err != nil {
			return noStream, err
		}
		c.entry.child = child
	}

	if len(children) == 0 {
		return noStream, nil
	}

	// Compound-file sibling order: shorter names first, then upper-cased
	// lexicographic.
	sort.SliceStable(children, func(i, j int) bool {
		a, b := children[i].entry.name, children[j].entry.name
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return strings.ToUpper(a) < strings.ToUpper(b)
	})

	var build func(lo, hi int) uint32
	build = func(lo, hi int) uint32 {
		if lo > hi {
			return noStream
		}
		mid := (lo + hi) / 2
		c := children[mid]
		c.entry.left = build(lo, mid-1)
		c.entry.right = build(mid+1, hi)
		return c.id
	}
	return build(0, len(children)-1), nil
}

func checkName(name string) error {
	if name == "" || len([]rune(name)) > maxNameRunes {
		return fmt.Errorf("%w: invalid stream name %q", errors.ErrFormat, name)
	}
	return nil
}

func writeEntry(buf []byte, e *dirEntry) error {
	le := binary.LittleEndian
	units := utf16.Encode([]rune(e.name))
	for i, u := range units {
		le.PutUint16(buf[2*i:], u)
	}
	le.PutUint16(buf[64:], uint16((len(units)+1)*2))
	buf[66] = e.objType
	buf[67] = colorBlack
	le.PutUint32(buf[68:], e.left)
	le.PutUint32(buf[72:], e.right)
	le.PutUint32(buf[76:], e.child)
	le.PutUint32(buf[116:], e.startSector)
	le.PutUint64(buf[120:], e.size)
	return nil
}

func writeEmptyEntry(buf []byte) {
	le := binary.LittleEndian
	buf[66] = typeEmpty
	le.PutUint32(buf[68:], noStream)
	le.PutUint32(buf[72:], noStream)
	le.PutUint32(buf[76:], noStream)
	le.PutUint32(buf[116:], secFree)
}

func chain(fat []uint32, start uint32, n int) {
	for i := 0; i < n; i++ {
		if i == n-1 {
			fat[int(start)+i] = secEndChain
		} else {
			fat[int(start)+i] = start + uint32(i) + 1
		}
	}
}

func pad(data []byte, unit int) []byte {
	rem := len(data) % unit
	if rem == 0 {
		return data
	}
	return append(data[:len(data):len(data)], make([]byte, unit-rem)...)
}

func sectorCount(bytes, unit int) int {
	return (bytes + unit - 1) / unit
}
