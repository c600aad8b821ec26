package tasks

import (
	"time"

	"lunchsail/internal/models"
	"lunchsail/internal/storage"
	"lunchsail/internal/ws"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SweepExpiredRooms закрывает комнаты, чьё время отправления уже прошло.
// Комната с двумя и более активными участниками считается отплывшей
// (departed, участники выходят с exit_type=sailed и получают по билету гачи),
// с меньшим числом — несостоявшейся (finished, exit_type=cancel).
// Вся зачистка выполняется в одной транзакции и идемпотентна: повторный
// запуск без новых записей ничего не меняет.
func SweepExpiredRooms() error {
	now := time.Now().UTC()
	touched := map[uint]bool{}

	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		// Блокируем строки комнат, чтобы параллельный sweep или join
		// не работали с теми же комнатами одновременно.
		var rooms []models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("deleted = ? AND departure_time <= ?", false, now).
			Find(&rooms).Error; err != nil {
			return err
		}

		for i := range rooms {
			room := &rooms[i]

			var count int64
			if err := tx.Model(&models.Participant{}).
				Where("room_id = ? AND left_at IS NULL", room.ID).
				Count(&count).Error; err != nil {
				return err
			}

			status := models.RoomStatusFinished
			exitType := models.ExitTypeCancel
			if count >= 2 {
				status = models.RoomStatusDeparted
				exitType = models.ExitTypeSailed

				// Состоявшийся обед приносит каждому участнику билет гачи.
				var userIDs []uint
				if err := tx.Model(&models.Participant{}).
					Where("room_id = ? AND left_at IS NULL", room.ID).
					Pluck("user_id", &userIDs).Error; err != nil {
					return err
				}
				if err := tx.Model(&models.User{}).
					Where("id IN ?", userIDs).
					UpdateColumn("ticket_count", gorm.Expr("ticket_count + ?", 1)).Error; err != nil {
					return err
				}
			}

			if err := tx.Model(&models.Participant{}).
				Where("room_id = ? AND left_at IS NULL", room.ID).
				Updates(map[string]interface{}{"left_at": now, "exit_type": exitType}).Error; err != nil {
				return err
			}

			if err := tx.Model(&models.Room{}).Where("id = ?", room.ID).
				Updates(map[string]interface{}{"status": status, "deleted": true}).Error; err != nil {
				return err
			}

			touched[room.CompanyID] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Уведомления отправляются строго после коммита транзакции.
	for companyID := range touched {
		ws.NotifyRoomRefresh(companyID)
	}
	return nil
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler() *cron.Cron {
	c := cron.New(cron.WithSeconds())

	// Зачистка просроченных комнат каждую минуту, чтобы клиенты получали
	// уведомления даже без обращений к списку комнат.
	_, err := c.AddFunc("0 * * * * *", func() {
		if err := SweepExpiredRooms(); err != nil {
			zap.L().Error("Ошибка зачистки просроченных комнат", zap.Error(err))
		}
	})
	if err != nil {
		zap.L().Error("Ошибка запуска cron-задачи SweepExpiredRooms", zap.Error(err))
	}

	c.Start()
	zap.L().Info("Cron-планировщик запущен")
	return c
}
