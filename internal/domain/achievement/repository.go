package achievement

import "context"

// UnlockStore - хранилище фактов разблокировки.
// Идемпотентность обеспечивается уникальностью (user_id, type):
// повторная попытка выдачи не создаёт дубликат и не возвращает ошибку.
type UnlockStore interface {
	// TryUnlock пытается записать разблокировку.
	// Возвращает true, если запись создана впервые.
	TryUnlock(ctx context.Context, u *Unlock) (bool, error)

	// ListByUser возвращает все разблокировки пользователя.
	ListByUser(ctx context.Context, userID string) ([]Unlock, error)
}
