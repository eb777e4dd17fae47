/*
 * @module service/monitoring/probes
 * @description 默认依赖探针：数据库、支付网关、实时音视频令牌、外部 API（邮件/短信/文件存储）
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 探针配置 -> 单项检测 -> 布尔结果
 * @rules 缺少配置的探针返回 ErrProbeNotConfigured，由健康检查器计为失败
 * @dependencies gorm.io/gorm, github.com/aws/aws-sdk-go-v2/service/s3, code.cloudfoundry.org/clock
 */

package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gorm.io/gorm"
)

const (
	ProbeDatabase      = "database"
	ProbePayments      = "payments"
	ProbeRealtime      = "realtime"
	ProbeExternalAPIs  = "external_apis"
	ProbeEmailProvider = "email_provider"
	ProbeSMSProvider   = "sms_provider"
	ProbeFileStorage   = "file_storage"

	externalAPIQuorum = 2
)

// S3HeadBucketAPI 文件存储探针用到的 S3 方法
type S3HeadBucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ProbeSettings 默认探针所需的配置
type ProbeSettings struct {
	DB *gorm.DB

	StripeAPIURL    string
	StripeSecretKey string

	RTCAppID       string
	RTCCertificate string

	ResendAPIURL string
	ResendAPIKey string

	SMSAPIKey string

	StorageURL       string
	StorageAccessKey string
	StorageBucket    string
	S3Client         S3HeadBucketAPI

	HTTPClient HTTPDoer
	Clock      clock.Clock
}

// DefaultProbes 构造默认探针集合
func DefaultProbes(s ProbeSettings) []Probe {
	if s.HTTPClient == nil {
		s.HTTPClient = newHTTPClient(0)
	}
	if s.Clock == nil {
		s.Clock = clock.NewClock()
	}

	return []Probe{
		DatabaseProbe(s.DB),
		PaymentsProbe(s.HTTPClient, s.StripeAPIURL, s.StripeSecretKey),
		RealtimeProbe(s.Clock, s.RTCAppID, s.RTCCertificate),
		NewQuorumProbe(ProbeExternalAPIs, externalAPIQuorum,
			EmailProviderProbe(s.HTTPClient, s.ResendAPIURL, s.ResendAPIKey),
			SMSProviderProbe(s.SMSAPIKey),
			FileStorageProbe(s.S3Client, s.StorageBucket, s.StorageURL, s.StorageAccessKey),
		),
	}
}

// DatabaseProbe 执行 SELECT 1
func DatabaseProbe(db *gorm.DB) Probe {
	return NewProbe(ProbeDatabase, func(ctx context.Context) (bool, error) {
		if db == nil {
			return false, fmt.Errorf("%w: %s", ErrProbeNotConfigured, ProbeDatabase)
		}
		var one int
		if err := db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
			return false, fmt.Errorf("数据库连接失败: %w", err)
		}
		return one == 1, nil
	})
}

// PaymentsProbe 查询支付网关余额接口
func PaymentsProbe(client HTTPDoer, apiURL, secretKey string) Probe {
	return NewProbe(ProbePayments, func(ctx context.Context) (bool, error) {
		if secretKey == "" {
			return false, fmt.Errorf("%w: %s", ErrProbeNotConfigured, ProbePayments)
		}
		return httpGetOK(ctx, client, strings.TrimRight(apiURL, "/")+"/v1/balance", secretKey)
	})
}

// RealtimeProbe 本地签发一次令牌以确认凭证可用
func RealtimeProbe(clk clock.Clock, appID, certificate string) Probe {
	return NewProbe(ProbeRealtime, func(ctx context.Context) (bool, error) {
		token, err := BuildRTCToken(appID, certificate, "health-check", 0, time.Hour, clk.Now())
		if err != nil {
			return false, err
		}
		return token != "", nil
	})
}

// EmailProviderProbe 查询邮件服务域名列表
func EmailProviderProbe(client HTTPDoer, apiURL, apiKey string) Probe {
	return NewProbe(ProbeEmailProvider, func(ctx context.Context) (bool, error) {
		if apiKey == "" {
			return false, fmt.Errorf("%w: %s", ErrProbeNotConfigured, ProbeEmailProvider)
		}
		return httpGetOK(ctx, client, strings.TrimRight(apiURL, "/")+"/domains", apiKey)
	})
}

// SMSProviderProbe 检查短信服务密钥是否配置
func SMSProviderProbe(apiKey string) Probe {
	return NewProbe(ProbeSMSProvider, func(ctx context.Context) (bool, error) {
		return apiKey != "", nil
	})
}

// FileStorageProbe 配置了存储桶时调用 HeadBucket，否则只检查存储地址与密钥
func FileStorageProbe(client S3HeadBucketAPI, bucket, storageURL, accessKey string) Probe {
	return NewProbe(ProbeFileStorage, func(ctx context.Context) (bool, error) {
		if bucket != "" && client != nil {
			if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
				return false, fmt.Errorf("存储桶不可访问: %w", err)
			}
			return true, nil
		}
		return storageURL != "" && accessKey != "", nil
	})
}

func httpGetOK(ctx context.Context, client HTTPDoer, url, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
