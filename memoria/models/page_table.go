package models

import (
	"slices"

	"github.com/samber/lo"
)

// Frame es una página física. Puede estar mapeada por varios espacios de direcciones a la vez;
// Ref cuenta cuántos la referencian y se libera cuando llega a cero.
type Frame struct {
	Number int
	Data   []byte
	Ref    int
}

// PageEntry es el descriptor de una página virtual presente.
type PageEntry struct {
	Frame *Frame
	Perm  Perm
}

// AddressSpace es la tabla de páginas de un proceso, indexada por dirección virtual alineada a página.
type AddressSpace struct {
	entries map[uintptr]*PageEntry
	// cantidad de páginas presentes por entrada de directorio (vista uvpd)
	dirs map[uintptr]int
}

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		entries: make(map[uintptr]*PageEntry),
		dirs:    make(map[uintptr]int),
	}
}

func (as *AddressSpace) Lookup(va uintptr) (*PageEntry, bool) {
	entry, ok := as.entries[RoundDown(va)]
	return entry, ok
}

// Set instala entry en va y devuelve la entrada que había antes, si existía.
func (as *AddressSpace) Set(va uintptr, entry *PageEntry) *PageEntry {
	va = RoundDown(va)
	old, exists := as.entries[va]
	if !exists {
		as.dirs[PageDirIndex(va)]++
	}
	as.entries[va] = entry
	return old
}

// Delete saca la entrada de va y la devuelve (nil si no estaba mapeada).
func (as *AddressSpace) Delete(va uintptr) *PageEntry {
	va = RoundDown(va)
	old, exists := as.entries[va]
	if !exists {
		return nil
	}
	delete(as.entries, va)
	dir := PageDirIndex(va)
	if as.dirs[dir]--; as.dirs[dir] == 0 {
		delete(as.dirs, dir)
	}
	return old
}

func (as *AddressSpace) DirPresent(va uintptr) bool {
	return as.dirs[PageDirIndex(va)] > 0
}

// Pages devuelve las direcciones de todas las páginas presentes en orden ascendente.
func (as *AddressSpace) Pages() []uintptr {
	pages := lo.Keys(as.entries)
	slices.Sort(pages)
	return pages
}

func (as *AddressSpace) Len() int {
	return len(as.entries)
}
