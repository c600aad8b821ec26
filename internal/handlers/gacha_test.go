package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"

	"github.com/stretchr/testify/assert"
)

func TestGachaFlow(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.Close()

	company := createTestCompany(t, "Компания гачи")
	user := createTestUser(t, company.ID, "collector")

	item := models.Item{Name: "Капитанская фуражка", ImageURL: "https://cdn.example.com/cap.png", Grade: "rare", Weight: 10}
	assert.NoError(t, storage.DB.Create(&item).Error)

	// Без билетов розыгрыш недоступен.
	var errResp response.ErrorResponse
	res := doJSON(t, "POST", ts.URL+"/api/gacha/draw", user, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "NO_TICKETS", errResp.Code)

	// Начисляем билет и разыгрываем.
	assert.NoError(t, storage.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("ticket_count", 1).Error)

	var draw DrawResponse
	res = doJSON(t, "POST", ts.URL+"/api/gacha/draw", user, nil, &draw)
	assert.Equal(t, http.StatusOK, res.StatusCode, "Розыгрыш с билетом должен пройти")
	assert.True(t, draw.Success)
	assert.Equal(t, item.ID, draw.Item.ItemID)
	assert.Equal(t, 0, draw.TicketCount)

	var ownedCount int64
	storage.DB.Model(&models.UserItem{}).Where("user_id = ? AND item_id = ?", user.ID, item.ID).Count(&ownedCount)
	assert.Equal(t, int64(1), ownedCount, "Выпавший предмет должен попасть в инвентарь")

	// Билет списан — второй розыгрыш недоступен.
	res = doJSON(t, "POST", ts.URL+"/api/gacha/draw", user, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "NO_TICKETS", errResp.Code)

	// Надеваем выпавший предмет.
	equipURL := fmt.Sprintf("%s/api/items/%d/equip", ts.URL, item.ID)
	res = doJSON(t, "POST", equipURL, user, nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var updated models.User
	assert.NoError(t, storage.DB.First(&updated, user.ID).Error)
	assert.NotNil(t, updated.EquippedItemID)
	assert.Equal(t, item.ID, *updated.EquippedItemID)

	// Чужой предмет надеть нельзя.
	res = doJSON(t, "POST", ts.URL+"/api/items/99999/equip", user, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "ITEM_NOT_OWNED", errResp.Code)

	// Инвентарь отражает надетый предмет.
	var inventory InventoryResponse
	res = doJSON(t, "GET", ts.URL+"/api/items", user, nil, &inventory)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, inventory.TicketCount)
	assert.Len(t, inventory.Items, 1)
	assert.True(t, inventory.Items[0].Equipped)
}

// TestPickWeighted проверяет выбор по весам без обращения к базе.
func TestPickWeighted(t *testing.T) {
	items := []models.Item{
		{Name: "common", Weight: 0},
		{Name: "only", Weight: 5},
	}

	// Предмет с нулевым весом никогда не выпадает.
	for i := 0; i < 50; i++ {
		picked := pickWeighted(items)
		assert.Equal(t, "only", picked.Name)
	}
}
