package main

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackpal/bencode-go"
)

// WriteBencode encodes v and writes it as the tracker response body,
// generalizing the teacher's http.ResponseWriter writer to gin's Context.
func WriteBencode(c *gin.Context, v any) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, v); err != nil {
		c.String(http.StatusInternalServerError, "bencode error")
		return
	}
	c.Data(http.StatusOK, "text/plain", buf.Bytes())
}

func BencodeError(c *gin.Context, msg string) {
	WriteBencode(c, map[string]string{"failure reason": msg})
}
