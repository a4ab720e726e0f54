package models

import "github.com/pkg/errors"

var (
	ErrNoMem       = errors.New("no hay frames libres")
	ErrInvalidArea = errors.New("rango de memoria inválido")
)
