package service

import (
	"context"

	"library-backend/internal/domain"
	"library-backend/internal/repository"
)

type notificationService struct {
	store repository.Store
}

func NewNotificationService(store repository.Store) NotificationService {
	return &notificationService{store: store}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error) {
	page, pageSize = domain.NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize
	return s.store.Repos().Notifications.List(ctx, userID, pageSize, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID int32) (*domain.Notification, error) {
	var note *domain.Notification
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		if note, err = repos.Notifications.GetByID(ctx, notificationID); err != nil {
			return err
		}
		if note.UserID != userID {
			return domain.Forbidden("You are not authorized to update this notification.")
		}
		if err := repos.Notifications.MarkAsRead(ctx, notificationID, userID); err != nil {
			return err
		}
		note.IsRead = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}
