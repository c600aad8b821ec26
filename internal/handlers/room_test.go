package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func createRoomRequest(maxParticipants int, departure time.Time) CreateRoomRequest {
	return CreateRoomRequest{
		RestaurantName:    "김밥천국",
		RestaurantAddress: "서울시 강남구",
		Latitude:          37.4979,
		Longitude:         127.0276,
		PlaceID:           "place-123",
		MaxParticipants:   maxParticipants,
		DepartureTime:     departure.Format(time.RFC3339),
	}
}

func TestRoomFlow(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	company := createTestCompany(t, "Тестовая компания")
	creator := createTestUser(t, company.ID, "kim")
	member := createTestUser(t, company.ID, "lee")

	// Подключаем WS-клиента, чтобы проверить уведомления об изменениях.
	wsURL := "ws" + ts.URL[4:] + "/api/ws"
	wsHeaders := http.Header{}
	wsHeaders.Set("X-Test-UserID", fmt.Sprintf("%d", member.ID))
	wsHeaders.Set("X-Test-CompanyID", fmt.Sprintf("%d", company.ID))
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, wsHeaders)
	assert.NoError(t, err, "Ошибка подключения к WS")
	defer wsConn.Close()
	time.Sleep(100 * time.Millisecond) // ждём регистрации клиента в хабе

	// 1. Создание комнаты.
	var created response.RoomResponse
	res := doJSON(t, "POST", ts.URL+"/api/rooms", creator, createRoomRequest(4, time.Now().UTC().Add(30*time.Minute)), &created)
	assert.Equal(t, http.StatusCreated, res.StatusCode, "Комната не создалась")
	assert.True(t, created.Success)
	assert.Equal(t, "김밥천국 출항해요", created.Room.Title)
	assert.Equal(t, 1, created.Room.CurrentParticipants)
	assert.Equal(t, models.RoomStatusWaiting, created.Room.Status)

	roomID := created.Room.RoomID

	// WS-уведомление о создании комнаты.
	wsConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, wsMessage, err := wsConn.ReadMessage()
	assert.NoError(t, err, "Ошибка чтения WS сообщения")
	assert.Contains(t, string(wsMessage), "room_refresh")

	// 2. Список комнат: создатель видит комнату и отмечен участником.
	var list response.RoomListResponse
	res = doJSON(t, "GET", ts.URL+"/api/rooms", creator, nil, &list)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, list.TotalCount)
	assert.True(t, list.Rooms[0].IsParticipant)
	assert.Equal(t, 1, list.Rooms[0].CurrentParticipants)

	// Для второго пользователя is_participant=false.
	res = doJSON(t, "GET", ts.URL+"/api/rooms", member, nil, &list)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, list.Rooms[0].IsParticipant)

	// 3. Вступление второго пользователя.
	joinURL := fmt.Sprintf("%s/api/rooms/%d/join", ts.URL, roomID)
	res = doJSON(t, "POST", joinURL, member, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, "Пользователь не смог вступить в комнату")

	// Повторное вступление запрещено.
	var joinErr response.ErrorResponse
	res = doJSON(t, "POST", joinURL, member, nil, &joinErr)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "ALREADY_JOINED", joinErr.Code)

	// 4. Выход и повторное вступление: остаётся две записи, активна только вторая.
	leaveURL := fmt.Sprintf("%s/api/rooms/%d/leave", ts.URL, roomID)
	res = doJSON(t, "POST", leaveURL, member, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = doJSON(t, "POST", joinURL, member, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, "Повторное вступление после выхода не удалось")

	var entries []models.Participant
	err = storage.DB.Where("room_id = ? AND user_id = ?", roomID, member.ID).Order("id ASC").Find(&entries).Error
	assert.NoError(t, err)
	assert.Len(t, entries, 2, "После выхода и возврата должно быть две записи участия")
	assert.NotNil(t, entries[0].LeftAt)
	assert.Equal(t, models.ExitTypeCancel, entries[0].ExitType)
	assert.Nil(t, entries[1].LeftAt)

	// Повторный выход без активного участия.
	res = doJSON(t, "POST", leaveURL, member, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	var leaveErr response.ErrorResponse
	res = doJSON(t, "POST", leaveURL, member, nil, &leaveErr)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "NOT_IN_ROOM", leaveErr.Code)

	// 5. Отмена комнаты: не-создателю запрещено, комната не меняется.
	deleteURL := fmt.Sprintf("%s/api/rooms/%d", ts.URL, roomID)
	var deleteErr response.ErrorResponse
	res = doJSON(t, "DELETE", deleteURL, member, nil, &deleteErr)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "NOT_ROOM_CREATOR", deleteErr.Code)

	var room models.Room
	assert.NoError(t, storage.DB.First(&room, roomID).Error)
	assert.False(t, room.Deleted)
	assert.Equal(t, models.RoomStatusWaiting, room.Status)

	// Создатель отменяет комнату.
	res = doJSON(t, "DELETE", deleteURL, creator, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	assert.NoError(t, storage.DB.First(&room, roomID).Error)
	assert.True(t, room.Deleted)
	assert.Equal(t, models.RoomStatusFinished, room.Status)

	var activeCount int64
	storage.DB.Model(&models.Participant{}).Where("room_id = ? AND left_at IS NULL", roomID).Count(&activeCount)
	assert.Equal(t, int64(0), activeCount, "После отмены не должно остаться активных участников")

	// 6. Отменённая комната больше не попадает в список.
	res = doJSON(t, "GET", ts.URL+"/api/rooms", creator, nil, &list)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, list.TotalCount)

	// Вступление в отменённую комнату невозможно.
	res = doJSON(t, "POST", joinURL, member, nil, &joinErr)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "ROOM_NOT_FOUND", joinErr.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	company := createTestCompany(t, "Компания валидации")
	user := createTestUser(t, company.ID, "park")

	// Лимит участников вне диапазона [2,10].
	var errResp response.ErrorResponse
	res := doJSON(t, "POST", ts.URL+"/api/rooms", user, createRoomRequest(1, time.Now().UTC().Add(time.Hour)), &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	res = doJSON(t, "POST", ts.URL+"/api/rooms", user, createRoomRequest(11, time.Now().UTC().Add(time.Hour)), &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	// Время отправления в прошлом.
	res = doJSON(t, "POST", ts.URL+"/api/rooms", user, createRoomRequest(4, time.Now().UTC().Add(-time.Minute)), &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	// Пустое название заведения.
	req := createRoomRequest(4, time.Now().UTC().Add(time.Hour))
	req.RestaurantName = ""
	res = doJSON(t, "POST", ts.URL+"/api/rooms", user, req, &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	// Ни одна невалидная попытка не должна была создать комнату.
	var count int64
	storage.DB.Model(&models.Room{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

// TestJoinRoomCapacityConcurrent проверяет, что при параллельных вступлениях
// лимит мест не превышается: из N претендентов на одно свободное место
// успешен ровно один.
func TestJoinRoomCapacityConcurrent(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	company := createTestCompany(t, "Компания гонок")
	creator := createTestUser(t, company.ID, "choi")

	var created response.RoomResponse
	res := doJSON(t, "POST", ts.URL+"/api/rooms", creator, createRoomRequest(2, time.Now().UTC().Add(30*time.Minute)), &created)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	roomID := created.Room.RoomID

	// Создатель занимает одно место, свободно ровно одно.
	const contenders = 5
	users := make([]models.User, 0, contenders)
	for i := 0; i < contenders; i++ {
		users = append(users, createTestUser(t, company.ID, fmt.Sprintf("racer%d", i)))
	}

	joinURL := fmt.Sprintf("%s/api/rooms/%d/join", ts.URL, roomID)
	statuses := make([]int, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest("POST", joinURL, nil)
			if err != nil {
				return
			}
			req.Header.Set("X-Test-UserID", fmt.Sprintf("%d", users[i].ID))
			req.Header.Set("X-Test-CompanyID", fmt.Sprintf("%d", company.ID))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, status := range statuses {
		if status == http.StatusOK {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "Ровно один из претендентов должен занять последнее место")

	var activeCount int64
	storage.DB.Model(&models.Participant{}).Where("room_id = ? AND left_at IS NULL", roomID).Count(&activeCount)
	assert.Equal(t, int64(2), activeCount, "Активных участников не может быть больше лимита")
}
