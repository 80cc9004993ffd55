package apiclient

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type UserProfile struct {
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
	Address          *string `json:"address"`
	City             string  `json:"city"`
	Country          string  `json:"country"`
	Birthdate        *string `json:"birthdate"`
	ProfileImage     *string `json:"profile_image"`
	IsSeller         bool    `json:"is_seller"`
	IsSellerApproved bool    `json:"is_seller_approved"`
	IsStaff          bool    `json:"is_staff"`
}

type CartCountResponse struct {
	Count int `json:"count"`
}

type WishlistProduct struct {
	ID    int64  `json:"id"`
	Title string `json:"title,omitempty"`
}

type WishlistItem struct {
	ID      int64           `json:"id"`
	Product WishlistProduct `json:"product"`
}

type WishlistAddRequest struct {
	ProductID int64 `json:"product_id"`
}

type SyncItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type SyncCartRequest struct {
	Items []SyncItem `json:"items"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}
