package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OTPRequests counts requestOtp calls by purpose and result
	// (sent, cooldown_active, delivery_failed, rejected).
	OTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foraling_otp_requests_total",
		Help: "OTP issuance requests.",
	}, []string{"purpose", "result"})

	OTPValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foraling_otp_validations_total",
		Help: "OTP validation attempts.",
	}, []string{"result"})

	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foraling_sign_ins_total",
		Help: "Sign-in attempts.",
	}, []string{"result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foraling_ws_sessions_active",
		Help: "Currently connected session-channel clients.",
	})
)
