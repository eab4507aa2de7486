package codec

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "07:00", want: 25200},
		{in: "07:30", want: 27000},
		{in: "23:59", want: 86340},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := DecodeClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockRoundTripMinuteAligned(t *testing.T) {
	// encode(decode(x)) == x for every minute of the day
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			in := fmt.Sprintf("%02d:%02d", h, m)
			sec, err := DecodeClock(in)
			require.NoError(t, err)
			assert.Equal(t, in, EncodeClock(sec))
		}
	}
}

func TestEncodeClockTruncatesSeconds(t *testing.T) {
	assert.Equal(t, "07:30", EncodeClock(27000+59))
}

func TestMinutesCodec(t *testing.T) {
	assert.Equal(t, 10.0, EncodeMinutes(600))
	assert.Equal(t, 10.1, EncodeMinutes(605))
	assert.Equal(t, 600, DecodeMinutes(10.0))
	assert.Equal(t, 606, DecodeMinutes(10.1))
	assert.Equal(t, 0, DecodeMinutes(0))
}

func TestMinutesRoundTripTolerance(t *testing.T) {
	// decode(encode(s)) must land within 6 seconds of s for all s >= 0
	for s := 0; s <= 7200; s++ {
		got := DecodeMinutes(EncodeMinutes(s))
		assert.LessOrEqual(t, math.Abs(float64(got-s)), 6.0, "s=%d got=%d", s, got)
	}
}

func TestDayMaskDoubleToggle(t *testing.T) {
	// toggling any bit twice restores the original mask, for every mask
	for mask := 0; mask < 128; mask++ {
		for day := 0; day < 7; day++ {
			flipped := DayMaskSet(mask, day, !DayMaskGet(mask, day))
			restored := DayMaskSet(flipped, day, DayMaskGet(mask, day))
			assert.Equal(t, mask, restored, "mask=%07b day=%d", mask, day)
		}
	}
}

func TestDayMaskSetLeavesOtherBits(t *testing.T) {
	mask := 0b1010101
	got := DayMaskSet(mask, 1, true)
	assert.Equal(t, 0b1010111, got)
	got = DayMaskSet(got, 0, false)
	assert.Equal(t, 0b1010110, got)
}

func TestExpiryCodec(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	// empty means never expires
	got, err := DecodeExpiry("", loc)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	assert.Equal(t, "", EncodeExpiry(0, loc))

	// minute-aligned values round-trip exactly
	epoch, err := DecodeExpiry("2026-06-15T06:30", loc)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-15T06:30", EncodeExpiry(epoch, loc))

	// encode truncates below the minute
	assert.Equal(t, EncodeExpiry(epoch, loc), EncodeExpiry(epoch+59, loc))

	_, err = DecodeExpiry("not a date", loc)
	assert.Error(t, err)
}
