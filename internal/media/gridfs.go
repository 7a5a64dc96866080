package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"messaging-service/internal/models"
)

// GridFSStore keeps attachments in a MongoDB GridFS bucket.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
	log    *slog.Logger
}

// NewGridFSStore connects to MongoDB and opens the media bucket.
func NewGridFSStore(ctx context.Context, uri, database string, log *slog.Logger) (*GridFSStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName("message_media"))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create GridFSBucket: %w", err)
	}

	log.Info("media store connected", "database", database)
	return &GridFSStore{client: client, bucket: bucket, log: log}, nil
}

func (s *GridFSStore) Save(ctx context.Context, upload Upload) (File, error) {
	mime, contentType, body, err := Sniff(upload.Content)
	if err != nil {
		return File{}, err
	}

	now := time.Now().UTC()
	metadata := bson.M{
		"mime_type":    mime,
		"content_type": string(contentType),
		"uploaded_by":  upload.UploaderID,
		"uploaded_at":  now,
	}
	stream, err := s.bucket.OpenUploadStream(upload.Filename, options.GridFSUpload().SetMetadata(metadata))
	if err != nil {
		return File{}, fmt.Errorf("upload failed: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(deadline)
	}
	size, err := io.Copy(stream, body)
	if err != nil {
		_ = stream.Abort()
		return File{}, fmt.Errorf("file copy failed: %w", err)
	}

	id, ok := stream.FileID.(primitive.ObjectID)
	if !ok {
		return File{}, errors.New("unexpected gridfs file id")
	}
	return File{
		ID:          id.Hex(),
		Filename:    upload.Filename,
		MimeType:    mime,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  upload.UploaderID,
		UploadedAt:  now,
	}, nil
}

func (s *GridFSStore) Open(ctx context.Context, id string) (io.ReadCloser, File, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, File{}, ErrNotFound
	}

	stream, err := s.bucket.OpenDownloadStream(objectID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, File{}, ErrNotFound
	}
	if err != nil {
		return nil, File{}, fmt.Errorf("download failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetReadDeadline(deadline)
	}

	info := stream.GetFile()
	var metadata struct {
		MimeType    string `bson:"mime_type"`
		ContentType string `bson:"content_type"`
		UploadedBy  int64  `bson:"uploaded_by"`
	}
	if info.Metadata != nil {
		if err := bson.Unmarshal(info.Metadata, &metadata); err != nil {
			s.log.Warn("media metadata unreadable", "id", id, "error", err)
		}
	}

	return stream, File{
		ID:          id,
		Filename:    info.Name,
		MimeType:    metadata.MimeType,
		ContentType: models.ContentType(metadata.ContentType),
		Size:        info.Length,
		UploadedBy:  metadata.UploadedBy,
		UploadedAt:  info.UploadDate,
	}, nil
}

func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
