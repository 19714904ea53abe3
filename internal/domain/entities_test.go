package domain

import (
	"testing"
	"time"
)

func TestProductDue(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	cases := []struct {
		name    string
		checked *time.Time
		want    bool
	}{
		{name: "never checked", checked: nil, want: true},
		{name: "exactly at boundary", checked: at(24 * time.Hour), want: true},
		{name: "older than interval", checked: at(30 * time.Hour), want: true},
		{name: "within interval", checked: at(23*time.Hour + 59*time.Minute), want: false},
	}
	for _, tc := range cases {
		p := Product{CheckFrequency: 24, LastChecked: tc.checked}
		if got := p.Due(now); got != tc.want {
			t.Fatalf("%s: ожидали %v, получили %v", tc.name, tc.want, got)
		}
	}
}

func TestParseChannel(t *testing.T) {
	if ch, ok := ParseChannel(" Email "); !ok || ch != ChannelEmail {
		t.Fatalf("ожидали email, получили %q %v", ch, ok)
	}
	if _, ok := ParseChannel("sms"); ok {
		t.Fatal("sms не должен распознаваться")
	}
}

func TestProductClone(t *testing.T) {
	checked := time.Now()
	p := Product{LastChecked: &checked, NotificationMethods: []Channel{ChannelAccount}}
	c := p.Clone()
	c.NotificationMethods[0] = ChannelEmail
	*c.LastChecked = checked.Add(time.Hour)
	if p.NotificationMethods[0] != ChannelAccount {
		t.Fatal("клон разделяет список каналов с оригиналом")
	}
	if !p.LastChecked.Equal(checked) {
		t.Fatal("клон разделяет время проверки с оригиналом")
	}
}

func TestUserWants(t *testing.T) {
	u := User{EnablePriceDropNotifications: true}
	if u.Wants(AlertTargetReached) {
		t.Fatalf("оповещения о цели выключены")
	}
	if !u.Wants(AlertPriceDrop) {
		t.Fatalf("оповещения о снижении включены")
	}
	if !u.Wants(AlertPriceIncrease) {
		t.Fatalf("рост цены не зависит от настроек пользователя")
	}
}
