package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/knowledged/internal/domain"
	"github.com/fyrsmithlabs/knowledged/internal/usecases"
)

type rootResponse struct {
	Service string `json:"service"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type newSubscriptionRequest struct {
	Name            string   `json:"name"`
	ResourceTypeIDs []string `json:"resource_type_ids"`
	Status          string   `json:"status"`
	OrganisationID  string   `json:"organisation_id,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
}

type newCollectionRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	ResourceTypeIDs []string `json:"resource_type_ids"`
}

type newResourceTypeRequest struct {
	Name    string `json:"name"`
	Tooltip string `json:"tooltip,omitempty"`
}

type resourceUploadResponse struct {
	ResourceID  string   `json:"resource_id"`
	Status      string   `json:"status"`
	ResourceURL string   `json:"resource_url"`
	Webhooks    []string `json:"webhooks,omitempty"`
}

type queryRequest struct {
	Prompt      string            `json:"prompt"`
	ResourceIDs []string          `json:"resource_ids,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	Webhooks    []string          `json:"webhooks,omitempty"`
	MaxResults  int               `json:"max_results,omitempty"`
}

type initiateSearchResponse struct {
	SearchID  string `json:"search_id"`
	Status    string `json:"status"`
	SearchURL string `json:"search_url"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, rootResponse{
		Service: "knowledged",
		Message: "multi-tenant knowledge service; see /health and /metrics",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleCreateSubscription(c echo.Context) error {
	var req newSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := s.svc.CreateSubscription(c.Request().Context(), usecases.NewSubscriptionInput{
		Name:            req.Name,
		ResourceTypeIDs: req.ResourceTypeIDs,
		IsActive:        req.Status != "inactive",
		OrganisationID:  req.OrganisationID,
		UserID:          req.UserID,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleListSubscriptions(c echo.Context) error {
	subs, err := s.svc.ListSubscriptions(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, subs)
}

func (s *Server) handleGetSubscription(c echo.Context) error {
	sub, err := s.svc.GetSubscription(c.Request().Context(), c.Param("sid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscription(c echo.Context) error {
	res, err := s.svc.DeleteSubscription(c.Request().Context(), c.Param("sid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSubscriptionResourceTypes(c echo.Context) error {
	types, err := s.svc.SubscriptionResourceTypes(c.Request().Context(), c.Param("sid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, types)
}

func (s *Server) handleSubscriptionCollections(c echo.Context) error {
	cols, err := s.svc.SubscriptionCollections(c.Request().Context(), c.Param("sid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, cols)
}

func (s *Server) handleCreateCollection(c echo.Context) error {
	var req newCollectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	col, err := s.svc.CreateCollection(c.Request().Context(), c.Param("sid"), usecases.NewCollectionInput{
		Name:            req.Name,
		Description:     req.Description,
		ResourceTypeIDs: req.ResourceTypeIDs,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, col)
}

func (s *Server) handleGetCollection(c echo.Context) error {
	details, err := s.svc.GetCollection(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

func (s *Server) handleDeleteCollection(c echo.Context) error {
	res, err := s.svc.DeleteCollection(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCollectionResourceTypes(c echo.Context) error {
	types, err := s.svc.CollectionResourceTypes(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, types)
}

func (s *Server) handleListResources(c echo.Context) error {
	resources, err := s.svc.ListResources(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resources)
}

// handleUploadResource accepts multipart form data: the file under
// "new_resource", an optional display "name", an optional "metadata" file
// and repeated "webhooks" values.
func (s *Server) handleUploadResource(c echo.Context) error {
	fileHeader, err := c.FormFile("new_resource")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field new_resource is required")
	}
	content, err := readMultipartFile(fileHeader)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
	}

	var metadata []byte
	if mh, err := c.FormFile("metadata"); err == nil {
		metadata, err = readMultipartFile(mh)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read metadata file")
		}
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	webhooks := form.Value["webhooks"]

	r, err := s.svc.UploadResource(c.Request().Context(), usecases.UploadResourceInput{
		CollectionID:   c.Param("cid"),
		ResourceTypeID: c.Param("rtid"),
		Name:           c.FormValue("name"),
		FileName:       fileHeader.Filename,
		FileContent:    content,
		MetadataFile:   metadata,
		CallbackURLs:   webhooks,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resourceUploadResponse{
		ResourceID:  r.ID,
		Status:      string(r.Status),
		ResourceURL: fmt.Sprintf("/resources/%s", r.ID),
		Webhooks:    r.CallbackURLs,
	})
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleGetResource(c echo.Context) error {
	r, err := s.svc.GetResource(c.Request().Context(), c.Param("rid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleDeleteResource(c echo.Context) error {
	res, err := s.svc.DeleteResource(c.Request().Context(), c.Param("rid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListResourceTypes(c echo.Context) error {
	types, err := s.svc.ListResourceTypes(c.Request().Context())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, types)
}

func (s *Server) handleCreateResourceType(c echo.Context) error {
	var req newResourceTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rt, err := s.svc.CreateResourceType(c.Request().Context(), req.Name, req.Tooltip)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, rt)
}

func (s *Server) handleQueryCollection(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sr, err := s.svc.QueryCollection(c.Request().Context(), c.Param("cid"), queryInput(req))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, searchAccepted(sr))
}

func (s *Server) handleQueryResource(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sr, err := s.svc.QueryResource(c.Request().Context(), c.Param("rid"), queryInput(req))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, searchAccepted(sr))
}

func queryInput(req queryRequest) usecases.QueryInput {
	return usecases.QueryInput{
		Query:        req.Prompt,
		ResourceIDs:  req.ResourceIDs,
		Filters:      req.Filters,
		CallbackURLs: req.Webhooks,
		MaxResults:   req.MaxResults,
	}
}

func searchAccepted(sr *domain.SearchRequest) initiateSearchResponse {
	return initiateSearchResponse{
		SearchID:  sr.ID,
		Status:    string(sr.Status),
		SearchURL: fmt.Sprintf("/query-results/%s", sr.ID),
	}
}

func (s *Server) handleQueryResult(c echo.Context) error {
	view, err := s.svc.QueryResult(c.Request().Context(), c.Param("qid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleQueryMetadata(c echo.Context) error {
	sr, err := s.svc.QueryMetadata(c.Request().Context(), c.Param("qid"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, sr)
}
