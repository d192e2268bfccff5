package grpcclient

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/ml-gateway/internal/imageprocessor"
	"github.com/example/ml-gateway/internal/logging"
	"github.com/example/ml-gateway/internal/ocr"
)

// RecognizeMethod is the unary method served by remote OCR workers. It takes
// the PNG bytes of a binarized image as google.protobuf.BytesValue and
// answers with the text as google.protobuf.StringValue.
const RecognizeMethod = "/ocr.v1.Recognizer/Recognize"

// DialOCR returns a ready-to-use OCR engine backed by a remote worker.
func DialOCR(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (ocr.Engine, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_ocr", "", err)
		logger.Error("failed to dial ocr worker", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewOCRClient(conn, logger), conn, nil
}

// NewOCRClient adapts an existing connection.
func NewOCRClient(cc grpc.ClientConnInterface, logger *zap.Logger) ocr.Engine {
	return &grpcOCR{cc: cc, logger: logger.Named("grpc_ocr")}
}

type grpcOCR struct {
	cc     grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcOCR) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	data, err := imageprocessor.EncodePNG(img)
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := g.cc.Invoke(ctx, RecognizeMethod, wrapperspb.Bytes(data), out); err != nil {
		wrapped := logging.NewOperationError("grpcclient.recognize", "", err)
		g.logger.Error("ocr worker call failed", zap.Error(wrapped))
		return "", wrapped
	}
	return out.GetValue(), nil
}

// Close is a no-op; the connection returned by DialOCR is owned by the caller.
func (g *grpcOCR) Close() error { return nil }
