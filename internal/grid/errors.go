package grid

import (
	"errors"
	"fmt"

	"github.com/annel0/mmo-grid/internal/tile"
	"github.com/google/uuid"
)

// Ошибки директории
var (
	// ErrCollision: тайл уже занят онлайн-регионом
	ErrCollision = errors.New("grid: tile already occupied")
	// ErrNotFound: регион с таким ключом не зарегистрирован.
	// Сама директория сообщает об отсутствии через bool; REST API переводит
	// отсутствие в эту ошибку и отвечает 404.
	ErrNotFound = errors.New("grid: region not found")
)

// CollisionError описывает отказ в регистрации на занятом тайле
type CollisionError struct {
	Handle   tile.Handle
	Occupant uuid.UUID
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("grid: %s already occupied by region %s", e.Handle, e.Occupant)
}

// Is позволяет сравнивать через errors.Is(err, ErrCollision)
func (e *CollisionError) Is(target error) bool {
	return target == ErrCollision
}

// IsCollision проверяет, является ли ошибка коллизией тайла
func IsCollision(err error) bool {
	return errors.Is(err, ErrCollision)
}
