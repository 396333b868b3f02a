package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
)

type bufferedWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// ETag tags successful GET responses with a hash of the body and answers
// 304 when the client already holds that version.
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		original := c.Writer
		writer := &bufferedWriter{ResponseWriter: original, body: bytes.NewBuffer(nil)}
		c.Writer = writer
		c.Next()
		c.Writer = original

		if writer.body.Len() == 0 {
			return
		}

		if original.Status() == http.StatusOK {
			tag := fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(writer.body.Bytes()))
			original.Header().Set("ETag", tag)
			if etagMatches(c.GetHeader("If-None-Match"), tag) {
				original.WriteHeader(http.StatusNotModified)
				original.WriteHeaderNow()
				return
			}
		}
		_, _ = original.Write(writer.body.Bytes())
	}
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == tag || "W/"+candidate == tag {
			return true
		}
	}
	return false
}
