package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/kernel/models"
	memoriaModels "github.com/sisoputnfrba/tp-2025-2c-Los-magiOS/memoria/models"
)

// Cada test corre como el proceso parent, que ya tiene un hijo creado con Exofork.
type SyscallSuite struct {
	suite.Suite
	k      *Kernel
	tlb    *recordingTLB
	parent *models.Env
	child  models.EnvID
}

func (s *SyscallSuite) SetupTest() {
	k, err := NewKernel(32 * memoriaModels.PageSize)
	s.Require().NoError(err)
	s.k = k
	s.child = 0
	s.tlb = &recordingTLB{}
	k.AddInvalidator(s.tlb)

	s.parent, err = k.EnvCreate(nil)
	s.Require().NoError(err)
}

func (s *SyscallSuite) run(fn func()) {
	s.Require().NoError(s.k.Run(s.parent.ID, func() {
		if s.child == 0 {
			var err error
			s.child, err = s.k.Exofork()
			s.Require().NoError(err)
		}
		fn()
	}))
}

func (s *SyscallSuite) TestExofork_ChildShell() {
	s.parent.Tf.Regs.EAX = 77
	s.parent.Tf.EIP = 5
	s.run(func() {
		child, err := s.k.envid2env(s.child, true)
		s.Require().NoError(err)
		s.Equal(s.parent.ID, child.ParentID)
		s.Equal(models.EnvNotRunnable, child.Status)
		s.Equal(uint32(0), child.Tf.Regs.EAX)
		s.Equal(uint32(5), child.Tf.EIP)
		s.Zero(child.AddressSpace.Len())
	})
}

func (s *SyscallSuite) TestPageAlloc_Validation() {
	s.run(func() {
		s.ErrorIs(s.k.PageAlloc(0, memoriaModels.UTemp+1, userPerm), models.ErrInval)
		s.ErrorIs(s.k.PageAlloc(0, memoriaModels.UTop, userPerm), models.ErrInval)
		s.ErrorIs(s.k.PageAlloc(0, memoriaModels.UTemp, memoriaModels.PermPresent), models.ErrInval)
		s.ErrorIs(s.k.PageAlloc(0, memoriaModels.UTemp, userPerm|memoriaModels.PermDirty), models.ErrInval)
		s.ErrorIs(s.k.PageAlloc(12345, memoriaModels.UTemp, userPerm), models.ErrBadEnv)

		s.NoError(s.k.PageAlloc(0, memoriaModels.UTemp, userPerm|memoriaModels.PermCOW))
		pte, ok := s.k.PageLookup(memoriaModels.UTemp)
		s.True(ok)
		s.True(pte.Has(memoriaModels.PermCOW | memoriaModels.PermPresent))
		s.True(s.k.PageDirLookup(memoriaModels.UTemp))
		s.False(s.k.PageDirLookup(memoriaModels.UTemp + memoriaModels.PtSize))
	})
	s.Contains(s.tlb.invalidated, memoriaModels.UTemp)
}

func (s *SyscallSuite) TestPageAlloc_NoMem() {
	s.run(func() {
		var err error
		for va := memoriaModels.UTemp; err == nil; va += memoriaModels.PageSize {
			err = s.k.PageAlloc(0, va, userPerm)
		}
		s.ErrorIs(err, models.ErrNoMem)
	})
}

func (s *SyscallSuite) TestPageMap_SharesFrame() {
	s.run(func() {
		s.Require().NoError(s.k.PageAlloc(0, memoriaModels.UTemp, userPerm))
		s.Require().NoError(s.k.PageMap(0, memoriaModels.UTemp, s.child, memoriaModels.UText+memoriaModels.PtSize, userPerm))

		parentEntry, _ := s.parent.AddressSpace.Lookup(memoriaModels.UTemp)
		child, _ := s.k.envid2env(s.child, true)
		childEntry, ok := child.AddressSpace.Lookup(memoriaModels.UText + memoriaModels.PtSize)
		s.Require().True(ok)
		s.Same(parentEntry.Frame, childEntry.Frame)
		s.Equal(2, parentEntry.Frame.Ref)
	})
}

func (s *SyscallSuite) TestPageMap_Validation() {
	readOnly := memoriaModels.PermUser | memoriaModels.PermPresent
	s.run(func() {
		s.ErrorIs(s.k.PageMap(0, memoriaModels.UTemp, s.child, memoriaModels.UTemp, readOnly), models.ErrInval)

		s.Require().NoError(s.k.PageAlloc(0, memoriaModels.UTemp, readOnly))
		s.ErrorIs(s.k.PageMap(0, memoriaModels.UTemp, s.child, memoriaModels.UTemp, userPerm), models.ErrInval)
		s.NoError(s.k.PageMap(0, memoriaModels.UTemp, s.child, memoriaModels.UTemp, readOnly))
	})
}

func (s *SyscallSuite) TestRemapClearsDirty() {
	s.run(func() {
		s.Require().NoError(s.k.PageAlloc(0, memoriaModels.UTemp, userPerm))
		entry, _ := s.parent.AddressSpace.Lookup(memoriaModels.UTemp)
		entry.Perm |= memoriaModels.PermDirty | memoriaModels.PermAccessed

		s.Require().NoError(s.k.PageMap(0, memoriaModels.UTemp, 0, memoriaModels.UTemp, userPerm))
		pte, _ := s.k.PageLookup(memoriaModels.UTemp)
		s.False(pte.Has(memoriaModels.PermDirty))
		s.Equal(1, s.parent.AddressSpace.Len())
		again, _ := s.parent.AddressSpace.Lookup(memoriaModels.UTemp)
		s.Equal(1, again.Frame.Ref)
	})
}

func (s *SyscallSuite) TestPageUnmap() {
	s.run(func() {
		s.Require().NoError(s.k.PageAlloc(0, memoriaModels.UTemp, userPerm))
		s.NoError(s.k.PageUnmap(0, memoriaModels.UTemp))
		_, ok := s.k.PageLookup(memoriaModels.UTemp)
		s.False(ok)
		// desmapear algo que no está no es un error
		s.NoError(s.k.PageUnmap(0, memoriaModels.UTemp))
	})
}

func (s *SyscallSuite) TestEnvSetStatus() {
	s.run(func() {
		s.ErrorIs(s.k.EnvSetStatus(s.child, models.EnvDying), models.ErrInval)
		s.NoError(s.k.EnvSetStatus(s.child, models.EnvRunnable))
	})
	child, ok := s.k.FindEnv(s.child)
	s.Require().True(ok)
	s.Equal(models.EnvRunnable, child.Status)
}

func (s *SyscallSuite) TestOnlyParentMayTouchChild() {
	s.run(func() {})
	other, err := s.k.EnvCreate(nil)
	s.Require().NoError(err)

	s.Require().NoError(s.k.Run(other.ID, func() {
		s.ErrorIs(s.k.PageAlloc(s.child, memoriaModels.UTemp, userPerm), models.ErrBadEnv)
		s.ErrorIs(s.k.EnvDestroy(s.parent.ID), models.ErrBadEnv)
	}))
}

func (s *SyscallSuite) TestEnvDestroy_Child() {
	s.run(func() {
		s.Require().NoError(s.k.PageAlloc(s.child, memoriaModels.UTemp, userPerm))
		s.NoError(s.k.EnvDestroy(s.child))
		s.ErrorIs(s.k.EnvSetStatus(s.child, models.EnvRunnable), models.ErrBadEnv)
	})
	s.Equal(32, s.k.Memory().FreeCount())
}

func TestSyscallSuite(t *testing.T) {
	suite.Run(t, new(SyscallSuite))
}

func TestSyscalls_WithoutCurrentEnv(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.Exofork()
	require.ErrorIs(t, err, models.ErrBadEnv)
	require.ErrorIs(t, k.PageAlloc(0, memoriaModels.UTemp, userPerm), models.ErrBadEnv)
	require.Equal(t, models.EnvID(0), k.GetEnvID())
}
