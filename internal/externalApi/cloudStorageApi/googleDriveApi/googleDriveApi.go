package googleDriveApi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const downloadLinkTemplate = "https://drive.google.com/file/d/%s/view"

type GoogleDriveApi struct {
	srv *drive.Service
	cfg *config.Config
	now func() time.Time
}

func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) *GoogleDriveApi {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithCredentialsFile(cfg.GoogleDrive.CredentialsFile)}
	}

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		slog.Error("failed on drive.NewService", slog.String("err", err.Error()))
		panic(err)
	}
	return &GoogleDriveApi{srv: srv, cfg: cfg, now: time.Now}
}

// UploadFile stores the file and makes it readable by link.
func (a *GoogleDriveApi) UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.UploadFile"

	slog.Debug("UploadFile start", slog.String("rqID", rqID), slog.String("op", op), slog.String("filename", filename))

	fileMeta := &drive.File{
		Name:     filename,
		MimeType: mime.TypeByExtension(filepath.Ext(filename)),
	}

	// Media retries failed chunks on its own
	uploadedFile, err := a.srv.Files.
		Create(fileMeta).
		Media(reader).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("failed on uploading file to google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	perm := &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}

	_, err = a.srv.Permissions.Create(uploadedFile.Id, perm).Context(ctx).Do()
	if err != nil {
		slog.Error("failed on creating permission to uploaded file in google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	slog.Debug("UploadFile completed", slog.String("rqID", rqID), slog.String("op", op), slog.String("fileID", uploadedFile.Id))

	return fmt.Sprintf(downloadLinkTemplate, uploadedFile.Id), nil
}

// DeleteOldFiles removes reports older than cfg.GoogleDrive.FileTTL and
// returns how many were deleted. Only files named with model.ReportFilePrefix
// are considered.
func (a *GoogleDriveApi) DeleteOldFiles(ctx context.Context) (deleted int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.DeleteOldFiles"

	slog.Debug("DeleteOldFiles start", slog.String("rqID", rqID), slog.String("op", op))

	deadline := a.now().Add(-a.cfg.GoogleDrive.FileTTL)
	var expired []string
	total := 0

	err = a.srv.Files.List().
		Q(fmt.Sprintf("name contains '%s' and trashed = false", model.ReportFilePrefix)).
		Fields("nextPageToken, files(id, createdTime)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				total++
				createdTime, err := time.Parse(time.RFC3339, f.CreatedTime)
				if err != nil {
					slog.Error(
						"failed parse time",
						slog.String("rqID", rqID),
						slog.String("op", op),
						slog.String("err", err.Error()),
						slog.String("fileID", f.Id),
						slog.String("createdTime", f.CreatedTime),
					)
					continue
				}
				if createdTime.Before(deadline) {
					expired = append(expired, f.Id)
				}
			}
			return nil
		})
	if err != nil {
		slog.Error("failed on getting files", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	for _, id := range expired {
		if err := a.srv.Files.Delete(id).Context(ctx).Do(); err != nil {
			slog.Error(
				"failed delete file",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.String("err", err.Error()),
				slog.String("fileID", id),
			)
			continue
		}
		deleted++
	}

	slog.Info("delete old files done", slog.String("rqID", rqID), slog.Int("deletedFiles", deleted), slog.Int("remainingFiles", total-deleted))

	return deleted, nil
}
