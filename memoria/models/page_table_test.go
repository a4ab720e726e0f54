package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressSpace_SetLookupDelete(t *testing.T) {
	as := NewAddressSpace()
	frame := &Frame{Number: 3}

	assert.Nil(t, as.Set(0x401234, &PageEntry{Frame: frame, Perm: PermPresent}))
	entry, ok := as.Lookup(0x401fff)
	assert.True(t, ok)
	assert.Same(t, frame, entry.Frame)
	assert.True(t, as.DirPresent(0x400000))
	assert.False(t, as.DirPresent(0x800000))

	old := as.Delete(0x401000)
	assert.Same(t, entry, old)
	assert.False(t, as.DirPresent(0x400000))
	assert.Nil(t, as.Delete(0x401000))
}

func TestAddressSpace_PagesSorted(t *testing.T) {
	as := NewAddressSpace()
	for _, va := range []uintptr{0x9000, 0x1000, 0xEEBFD000, 0x5000} {
		as.Set(va, &PageEntry{Frame: &Frame{}})
	}

	assert.Equal(t, []uintptr{0x1000, 0x5000, 0x9000, 0xEEBFD000}, as.Pages())
	assert.Equal(t, 4, as.Len())
}

func TestPerm(t *testing.T) {
	p := PermPresent | PermUser | PermCOW | PermDirty
	assert.True(t, p.Has(PermUser|PermPresent))
	assert.False(t, p.Has(PermWrite))
	assert.Equal(t, "C-D-U-P", p.String())
	assert.Equal(t, PermAvail|PermPresent|PermWrite|PermUser, PermSyscall)
	assert.Zero(t, PermDirty&PermSyscall)
	assert.Equal(t, uintptr(0x7FF000), PFTemp)
}
