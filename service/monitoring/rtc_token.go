package monitoring

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

const rtcTokenVersion = "007"

var errRTCCredentials = errors.New("实时音视频凭证未配置")

// BuildRTCToken 生成实时音视频服务的签名令牌
// 令牌格式: 版本号 + base64(签名 | appID | 签发时间 | 过期秒数 | 频道 | uid)
func BuildRTCToken(appID, certificate, channel string, uid uint32, expire time.Duration, now time.Time) (string, error) {
	if appID == "" || certificate == "" {
		return "", errRTCCredentials
	}

	var content bytes.Buffer
	writeString(&content, appID)
	_ = binary.Write(&content, binary.LittleEndian, uint32(now.Unix()))
	_ = binary.Write(&content, binary.LittleEndian, uint32(expire/time.Second))
	writeString(&content, channel)
	_ = binary.Write(&content, binary.LittleEndian, uid)

	mac := hmac.New(sha256.New, []byte(certificate))
	mac.Write(content.Bytes())
	signature := mac.Sum(nil)

	var token bytes.Buffer
	writeString(&token, string(signature))
	token.Write(content.Bytes())

	return rtcTokenVersion + base64.StdEncoding.EncodeToString(token.Bytes()), nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}
