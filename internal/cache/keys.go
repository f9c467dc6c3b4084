package cache

// MetricType is the cache key prefix for one cached metric kind.
// 대소문자 구분 고정 집합 - 키 규약: "<MetricType>:<PortfolioID>"
type MetricType string

const (
	MetricVaR95      MetricType = "VaR_95"
	MetricES         MetricType = "ES"
	MetricSharpe     MetricType = "Sharpe"
	MetricBeta       MetricType = "Beta"
	MetricVolatility MetricType = "Volatility"
	MetricAlert      MetricType = "Alert"
)

// metricTypes are the five value-bearing entries written per portfolio
// (Alert는 별도의 해시 구조로 독립 기록)
var metricTypes = []MetricType{
	MetricVaR95,
	MetricES,
	MetricSharpe,
	MetricBeta,
	MetricVolatility,
}

// BuildKey formats a cache key following the naming convention
func BuildKey(metricType MetricType, portfolioID string) string {
	return string(metricType) + ":" + portfolioID
}

// servedKey maps a cache metric type to its canonical served metric name
func servedKey(mt MetricType) string {
	switch mt {
	case MetricVaR95:
		return "var"
	case MetricES:
		return "es"
	case MetricSharpe:
		return "sharpe"
	case MetricBeta:
		return "beta"
	case MetricVolatility:
		return "volatility"
	default:
		return ""
	}
}
