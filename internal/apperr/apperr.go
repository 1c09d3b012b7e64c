// Package apperr содержит таксономию игровых ошибок.
//
// Все ошибки восстановимые: вызывающий получает Kind и решает, что показать
// игроку. Проверка делается через errors.Is с одной из переменных Err*.
package apperr

import (
	"errors"
	"fmt"
)

// Kind класс игровой ошибки.
type Kind int

const (
	KindUnknown Kind = iota
	KindWorldNotFound
	KindAccessDenied
	KindPlayerNotOnGrid
	KindInvalidMove
	KindSquareOccupied
	KindInsufficientFunds
	KindAlreadyThere
	KindPendingEncounter
	KindInBattle
	KindNoActiveBattle
	KindNotYourTurn
	KindInvalidItem
	KindWorldFull
	KindNotClaimable
	KindInvalidArgument
	KindAlreadyOwned
	KindNotOwned
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindWorldNotFound:     "world_not_found",
	KindAccessDenied:      "access_denied",
	KindPlayerNotOnGrid:   "player_not_on_grid",
	KindInvalidMove:       "invalid_move",
	KindSquareOccupied:    "square_occupied",
	KindInsufficientFunds: "insufficient_funds",
	KindAlreadyThere:      "already_there",
	KindPendingEncounter:  "pending_encounter",
	KindInBattle:          "in_battle",
	KindNoActiveBattle:    "no_active_battle",
	KindNotYourTurn:       "not_your_turn",
	KindInvalidItem:       "invalid_item",
	KindWorldFull:         "world_full",
	KindNotClaimable:      "not_claimable",
	KindInvalidArgument:   "invalid_argument",
	KindAlreadyOwned:      "already_owned",
	KindNotOwned:          "not_owned",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error игровая ошибка с классом и сообщением.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is сравнивает ошибки по Kind, поэтому обёрнутые ошибки с уточнённым
// сообщением совпадают со своей переменной Err*.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New создаёт ошибку заданного класса.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf создаёт ошибку заданного класса с форматированным сообщением.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Ошибки движка
var (
	ErrWorldNotFound     = New(KindWorldNotFound, "world not found")
	ErrAccessDenied      = New(KindAccessDenied, "access denied")
	ErrPlayerNotOnGrid   = New(KindPlayerNotOnGrid, "player is not on the grid")
	ErrInvalidMove       = New(KindInvalidMove, "invalid move")
	ErrSquareOccupied    = New(KindSquareOccupied, "square is occupied")
	ErrInsufficientFunds = New(KindInsufficientFunds, "insufficient shards")
	ErrAlreadyThere      = New(KindAlreadyThere, "already on that square")
	ErrPendingEncounter  = New(KindPendingEncounter, "acknowledge the encounter first")
	ErrInBattle          = New(KindInBattle, "player is in battle")
	ErrNoActiveBattle    = New(KindNoActiveBattle, "no active battle")
	ErrNotYourTurn       = New(KindNotYourTurn, "not your turn")
	ErrInvalidItem       = New(KindInvalidItem, "invalid item")
	ErrWorldFull         = New(KindWorldFull, "no empty square left")
	ErrNotClaimable      = New(KindNotClaimable, "achievement is not claimable")
	ErrInvalidArgument   = New(KindInvalidArgument, "invalid argument")
	ErrAlreadyOwned      = New(KindAlreadyOwned, "item is already owned")
	ErrNotOwned          = New(KindNotOwned, "item is not owned")
)

// KindOf извлекает класс ошибки; для чужих ошибок возвращает KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
