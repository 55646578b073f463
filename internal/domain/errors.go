package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("enquete invalida")
	ErrPollClosed     = errors.New("enquete encerrada")
	ErrVoteCapReached = fmt.Errorf("%w: limite de votos atingido", ErrPollClosed)
	ErrInvalidChoice  = errors.New("alternativa invalida")
	ErrNotFound       = errors.New("enquete nao encontrada")
	ErrNotAuthor      = errors.New("somente o autor pode alterar a enquete")
	ErrMalformed      = errors.New("dados malformados")
	ErrAlreadyActive  = errors.New("enquete ja ativada")
)

// ValidationError lista as tags dos campos reprovados por Poll.Validate.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
