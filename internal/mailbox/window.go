package mailbox

import "github.com/vdavid/vmail/desktop/internal/models"

// PrependToWindow puts incoming emails at the head of w.Current while keeping
// every segment's length unchanged. The len(incoming) emails pushed out of the
// tail of Current move to the head of Next, and the same number is dropped from
// the tail of Next.
func PrependToWindow(w *models.Window, incoming []models.Email) {
	k := len(incoming)
	if k == 0 {
		return
	}

	current := make([]models.Email, 0, k+len(w.Current))
	current = append(current, incoming...)
	current = append(current, w.Current...)

	cut := len(current) - k
	overflow := current[cut:]
	current = current[:cut:cut]

	next := make([]models.Email, 0, k+len(w.Next))
	next = append(next, overflow...)
	next = append(next, w.Next...)
	next = next[:max(len(next)-k, 0)]

	w.Current = current
	w.Next = next
}

// NextPage moves Current behind Prev and pulls up to pageLength emails from the
// head of Next into Current. It reports false and leaves w untouched when Next
// is empty.
func NextPage(w *models.Window, pageLength int) bool {
	if len(w.Next) == 0 || pageLength <= 0 {
		return false
	}
	n := min(pageLength, len(w.Next))

	w.Prev = append(append([]models.Email(nil), w.Prev...), w.Current...)
	w.Current = append([]models.Email(nil), w.Next[:n]...)
	w.Next = append([]models.Email(nil), w.Next[n:]...)
	return true
}

// PrevPage is the inverse of NextPage.
func PrevPage(w *models.Window, pageLength int) bool {
	if len(w.Prev) == 0 || pageLength <= 0 {
		return false
	}
	n := min(pageLength, len(w.Prev))
	cut := len(w.Prev) - n

	w.Next = append(append([]models.Email(nil), w.Current...), w.Next...)
	w.Current = append([]models.Email(nil), w.Prev[cut:]...)
	w.Prev = append([]models.Email(nil), w.Prev[:cut]...)
	return true
}

// Split turns the backend's flat email list into a window whose Current holds
// the first pageLength emails and whose Next holds the rest.
func Split(emails []models.Email, pageLength int) models.Window {
	n := min(max(pageLength, 0), len(emails))
	return models.Window{
		Prev:    []models.Email{},
		Current: append([]models.Email{}, emails[:n]...),
		Next:    append([]models.Email{}, emails[n:]...),
	}
}
