package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZaitsWit/re-scraper/listing"
)

func TestDetectRentPeriod(t *testing.T) {
	cases := []struct {
		text string
		want listing.RentPeriod
	}{
		{text: "3 500 ₽ за сутки", want: listing.RentDaily},
		{text: "Сдам посуточно квартиру у метро", want: listing.RentDaily},
		{text: "55 000 ₽/мес.", want: listing.RentMonthly},
		{text: "Цена 55 000 в месяц, залог", want: listing.RentMonthly},
		{text: "1-комн. квартира, 40 м²", want: listing.RentUnknown},
		{text: "", want: listing.RentUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DetectRentPeriod(c.text), c.text)
	}
}

func TestIsRoomListing(t *testing.T) {
	cases := []struct {
		title   string
		context string
		want    bool
	}{
		// The compound adjective must not be mistaken for the noun.
		{title: "1-комнатная квартира, 40 м²", want: false},
		{title: "Комната 12 м² в 3-к. кв.", want: true},
		{title: "Комната в 2-комнатной квартире", want: true},
		{title: "Студия 25 м²", want: false},
		{title: "Сдается квартира", context: "с изолированной комнатой", want: false},
		{title: "Жилье", context: "подселение, девушке", want: true},
		{title: "Апартаменты на Невском", want: false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsRoomListing(c.title, c.context), c.title)
	}
}
