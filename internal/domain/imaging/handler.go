package imaging

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/radbridge/radbridge/internal/platform/apperr"
	"github.com/radbridge/radbridge/internal/platform/auth"
)

type Handler struct {
	importer *Importer
}

func NewHandler(importer *Importer) *Handler {
	return &Handler{importer: importer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "physician", "technologist")

	g := api.Group("", role)
	g.GET("/pacs/studies", h.SearchStudies)
	g.POST("/pacs/import", h.ImportStudy)
	g.GET("/studies/:id/files", h.ListStudyFiles)
}

func (h *Handler) SearchStudies(c echo.Context) error {
	refs, err := h.importer.SearchPatientStudies(c.Request().Context(), c.QueryParam("patient_external_id"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"studies": refs})
}

func (h *Handler) ImportStudy(c echo.Context) error {
	var req struct {
		StudyUID  string    `json:"study_uid"`
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.importer.ImportStudy(c.Request().Context(), req.StudyUID, req.PatientID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListStudyFiles(c echo.Context) error {
	studyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	files, err := h.importer.ListFiles(c.Request().Context(), studyID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"files": files})
}
