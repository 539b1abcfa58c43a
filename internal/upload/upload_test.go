package upload

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("image/png", 10))
	require.NoError(t, Validate("application/pdf", MaxSize))
	require.NoError(t, Validate("image/jpeg; charset=binary", 10))
	require.ErrorIs(t, Validate("text/plain", 10), ErrType)
	require.ErrorIs(t, Validate("", 10), ErrType)
	require.ErrorIs(t, Validate("image/png", MaxSize+1), ErrTooLarge)
}

func TestStoredName(t *testing.T) {
	n := storedName("../My Receipt.PDF")
	require.True(t, strings.HasPrefix(n, "My_Receipt-"), n)
	require.True(t, strings.HasSuffix(n, ".pdf"), n)
	require.NotContains(t, n, "/")
	require.NotEqual(t, n, storedName("../My Receipt.PDF"))
}

func TestLocalStoreSave(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	st, err := s.Save(context.Background(), File{
		Category:     CategoryReceipts,
		OriginalName: "r.png",
		ContentType:  "image/png",
		Body:         strings.NewReader("png-bytes"),
	})
	require.NoError(t, err)
	require.Equal(t, "/uploads/receipts/"+st.FileName, st.Path)

	b, err := os.ReadFile(filepath.Join(dir, CategoryReceipts, st.FileName))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(b))
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreSave(t *testing.T) {
	p := &fakePutter{}
	s := NewS3Store(p, "member-files", "us-east-2")
	st, err := s.Save(context.Background(), File{
		Category:     CategoryProfilePictures,
		OriginalName: "me.jpg",
		ContentType:  "image/jpeg",
		Body:         strings.NewReader("jpg"),
	})
	require.NoError(t, err)
	require.Equal(t, "member-files", aws.ToString(p.in.Bucket))
	require.Equal(t, "profilePictures/"+st.FileName, aws.ToString(p.in.Key))
	require.Equal(t, "jpg", p.body)
	require.Equal(t, "https://member-files.s3.us-east-2.amazonaws.com/profilePictures/"+st.FileName, st.Path)
}

func multipartRequest(t *testing.T, field, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFromForm(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = multipartRequest(t, "receipt", "r.pdf", "application/pdf", []byte("%PDF"))
	f, closer, err := FromForm(c, "receipt", CategoryReceipts)
	require.NoError(t, err)
	defer closer.Close()
	require.Equal(t, "application/pdf", f.ContentType)
	require.Equal(t, int64(4), f.Size)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = multipartRequest(t, "receipt", "r.txt", "text/plain", []byte("hi"))
	_, _, err = FromForm(c, "receipt", CategoryReceipts)
	require.ErrorIs(t, err, ErrType)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = multipartRequest(t, "other", "r.pdf", "application/pdf", []byte("%PDF"))
	_, _, err = FromForm(c, "receipt", CategoryReceipts)
	require.ErrorIs(t, err, ErrMissing)
}
