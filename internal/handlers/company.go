package handlers

import (
	"net/http"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"

	"github.com/gin-gonic/gin"
)

type CompanyItem struct {
	CompanyID uint    `json:"company_id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GetCompaniesHandler возвращает список компаний
// @Summary		Список компаний
// @Description	Возвращает все компании для выбора при регистрации
// @Tags			companies
// @Accept			json
// @Produce		json
// @Success		200	{array}		CompanyItem	"Список компаний"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/companies [get]
func GetCompaniesHandler(c *gin.Context) {
	var companies []models.Company
	if err := storage.DB.Order("name ASC").Find(&companies).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки списка компаний",
			Details: err.Error(),
		})
		return
	}

	items := make([]CompanyItem, 0, len(companies))
	for _, company := range companies {
		items = append(items, CompanyItem{
			CompanyID: company.ID,
			Name:      company.Name,
			Address:   company.Address,
			Latitude:  company.Latitude,
			Longitude: company.Longitude,
		})
	}

	c.JSON(http.StatusOK, items)
}
