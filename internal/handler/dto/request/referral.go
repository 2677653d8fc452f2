package request

type AcceptReferralRequest struct {
	Code string `json:"code" binding:"required"`
}
