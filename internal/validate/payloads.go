package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// MaxBodyBytes は JSON ボディとして読み込む上限です。
const MaxBodyBytes = 64 << 10

// Result は検証結果です。OK が false のとき Error に利用者向けメッセージが入ります。
type Result[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func ok[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

func fail[T any](message string) Result[T] {
	return Result[T]{Error: message}
}

// Interests はプラン相談で選べる旅行タイプです。
var Interests = []string{"Safari", "Beach Holiday", "Cultural Tour"}

// CheckoutTiers はオンライン決済で選べるプランの等級です。
var CheckoutTiers = []string{"standard", "premium"}

var (
	phonePattern         = regexp.MustCompile(`^[0-9+()\-.\s]{6,24}$`)
	transactionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,128}$`)
)

// PlanRequest はプラン相談（見積もり依頼）の検証済みデータです。
type PlanRequest struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	TravelDates string `json:"travelDates"`
	GroupSize   int    `json:"groupSize"`
	Interests   string `json:"interests"`
	BudgetRange string `json:"budgetRange,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Package     string `json:"package,omitempty"`
}

// NewsletterSignup はニュースレター登録の検証済みデータです。
type NewsletterSignup struct {
	Email  string `json:"email"`
	Source string `json:"source,omitempty"`
}

// CheckoutRequest はオンライン決済リクエストの検証済みデータです。
type CheckoutRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Pax         int     `json:"pax"`
	Tier        string  `json:"tier,omitempty"`
	PackageName string  `json:"packageName,omitempty"`
	PackageSlug string  `json:"packageSlug,omitempty"`
	Email       string  `json:"email,omitempty"`
}

// PasswordResetRequest はパスワード再設定依頼の検証済みデータです。
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// Decode は JSON ボディを型なしの値として読み込みます。数値は json.Number になります。
func Decode(r io.Reader) (any, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBodyBytes {
		return nil, errors.New("request body too large")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

func asObject(input any) (map[string]any, bool) {
	m, isMap := input.(map[string]any)
	return m, isMap && m != nil
}

// present は任意項目に値が入っているか（nil や空文字でないか）を返します。
func present(m map[string]any, key string) bool {
	v, exists := m[key]
	if !exists || v == nil {
		return false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

func optionalText(m map[string]any, key string, maxLength int) string {
	s, _ := CleanText(m[key], maxLength)
	return s
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Plan はプラン相談のペイロードを検証します。必須項目ごとに個別のメッセージを返します。
func Plan(input any) Result[PlanRequest] {
	m, isObject := asObject(input)
	if !isObject {
		return fail[PlanRequest]("Invalid request payload.")
	}

	var out PlanRequest
	var valid bool

	if out.FullName, valid = CleanText(m["fullName"], 120); !valid {
		return fail[PlanRequest]("Please enter your full name.")
	}
	if out.Email, valid = CleanEmail(m["email"]); !valid {
		return fail[PlanRequest]("Please enter a valid email address.")
	}
	if out.TravelDates, valid = CleanText(m["travelDates"], 120); !valid {
		return fail[PlanRequest]("Please tell us your travel dates.")
	}
	if out.GroupSize, valid = CleanInt(m["groupSize"], 1, 20); !valid {
		return fail[PlanRequest]("Group size must be a whole number between 1 and 20.")
	}
	interests, _ := CleanText(m["interests"], 40)
	if !oneOf(interests, Interests) {
		return fail[PlanRequest]("Please choose one of: " + strings.Join(Interests, ", ") + ".")
	}
	out.Interests = interests

	out.BudgetRange = optionalText(m, "budgetRange", 80)

	if present(m, "phone") {
		phone, cleaned := CleanText(m["phone"], 24)
		if !cleaned || !phonePattern.MatchString(phone) {
			return fail[PlanRequest]("Please enter a valid phone number.")
		}
		out.Phone = phone
	}

	if present(m, "package") {
		slug, cleaned := CleanSlug(m["package"], 100)
		if !cleaned {
			return fail[PlanRequest]("Selected package is not valid.")
		}
		out.Package = slug
	}

	return ok(out)
}

// Newsletter はニュースレター登録のペイロードを検証します。
func Newsletter(input any) Result[NewsletterSignup] {
	m, isObject := asObject(input)
	if !isObject {
		return fail[NewsletterSignup]("Invalid request payload.")
	}

	var out NewsletterSignup
	var valid bool
	if out.Email, valid = CleanEmail(m["email"]); !valid {
		return fail[NewsletterSignup]("Please enter a valid email address.")
	}

	if present(m, "source") {
		source, cleaned := CleanText(m["source"], 40)
		source = NormalizeSourceForStorage(source)
		if !cleaned || !slugPattern.MatchString(source) {
			return fail[NewsletterSignup]("Signup source is not valid.")
		}
		out.Source = source
	}
	return ok(out)
}

// Checkout はオンライン決済のペイロードを検証します。
// オンラインで申し込めるのは 2 名までで、それ以上はプラン相談に回します。
func Checkout(input any) Result[CheckoutRequest] {
	m, isObject := asObject(input)
	if !isObject {
		return fail[CheckoutRequest]("Invalid request payload.")
	}

	var out CheckoutRequest
	var valid bool
	if out.Amount, valid = CleanAmount(m["amount"]); !valid {
		return fail[CheckoutRequest]("Amount must be a positive number no greater than 100000.")
	}
	if out.Currency, valid = CleanCurrency(m["currency"]); !valid {
		return fail[CheckoutRequest]("Currency must be a 3-letter code.")
	}
	if out.Pax, valid = CleanInt(m["pax"], 1, 2); !valid {
		return fail[CheckoutRequest]("Online checkout is available for 1 or 2 travelers. Please send a plan request for larger groups.")
	}

	if present(m, "tier") {
		tier, _ := CleanText(m["tier"], 20)
		tier = strings.ToLower(tier)
		if !oneOf(tier, CheckoutTiers) {
			return fail[CheckoutRequest]("Selected tier is not valid.")
		}
		out.Tier = tier
	}

	out.PackageName = optionalText(m, "packageName", 120)

	if present(m, "packageSlug") {
		slug, cleaned := CleanSlug(m["packageSlug"], 100)
		if !cleaned {
			return fail[CheckoutRequest]("Selected package is not valid.")
		}
		out.PackageSlug = slug
	}

	if present(m, "email") {
		email, cleaned := CleanEmail(m["email"])
		if !cleaned {
			return fail[CheckoutRequest]("Please enter a valid email address.")
		}
		out.Email = email
	}
	return ok(out)
}

// PasswordReset はパスワード再設定依頼のペイロードを検証します。
func PasswordReset(input any) Result[PasswordResetRequest] {
	m, isObject := asObject(input)
	if !isObject {
		return fail[PasswordResetRequest]("Invalid request payload.")
	}
	email, valid := CleanEmail(m["email"])
	if !valid {
		return fail[PasswordResetRequest]("Please enter a valid email address.")
	}
	return ok(PasswordResetRequest{Email: email})
}

// TransactionID は決済 Webhook/IPN から届く取引IDを検証します。
// 切り詰めてから通すことがないよう、上限より長い値はそのまま拒否します。
func TransactionID(input any) Result[string] {
	id, valid := CleanText(input, 256)
	if !valid || !transactionIDPattern.MatchString(id) {
		return fail[string]("Invalid transaction identifier.")
	}
	return ok(id)
}
