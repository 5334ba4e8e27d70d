package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectwatch/objectwatch/pkg/types"
)

// One VIIRS direct-readout pass as delivered by a MinIO bucket
// subscription: fourteen notifications, one created object each.
var viirsGranuleKeys = []string{
	"sdr/SVM13_npp_d20240408_t1006227_e1007469_b64498_c20240408102334392250_cspp_dev.h5",
	"sdr/SVM14_npp_d20240408_t1006227_e1007469_b64498_c20240408102334431798_cspp_dev.h5",
	"sdr/SVM15_npp_d20240408_t1006227_e1007469_b64498_c20240408102334471520_cspp_dev.h5",
	"sdr/SVM16_npp_d20240408_t1006227_e1007469_b64498_c20240408102334509150_cspp_dev.h5",
	"sdr/GIMGO_npp_d20240408_t1006227_e1007469_b64498_c20240408102307309287_cspp_dev.h5",
	"sdr/GITCO_npp_d20240408_t1006227_e1007469_b64498_c20240408102307123064_cspp_dev.h5",
	"sdr/SVI01_npp_d20240408_t1006227_e1007469_b64498_c20240408102333369886_cspp_dev.h5",
	"sdr/SVI02_npp_d20240408_t1006227_e1007469_b64498_c20240408102333521003_cspp_dev.h5",
	"sdr/SVI03_npp_d20240408_t1006227_e1007469_b64498_c20240408102333616593_cspp_dev.h5",
	"sdr/SVI04_npp_d20240408_t1006227_e1007469_b64498_c20240408102333718056_cspp_dev.h5",
	"sdr/SVI05_npp_d20240408_t1006227_e1007469_b64498_c20240408102333815418_cspp_dev.h5",
	"sdr/GDNBO_npp_d20240408_t1006227_e1007469_b64498_c20240408102306939475_cspp_dev.h5",
	"sdr/SVDNB_npp_d20240408_t1006227_e1007469_b64498_c20240408102332971066_cspp_dev.h5",
	"sdr/IVCDB_npp_d20240408_t1006227_e1007469_b64498_c20240408102333190566_cspp_dev.h5",
}

func viirsNotifications() []types.RawNotification {
	notifs := make([]types.RawNotification, 0, len(viirsGranuleKeys))
	for _, key := range viirsGranuleKeys {
		notifs = append(notifs, notifFor("viirs-data", key))
	}
	return notifs
}

func TestPublishEmitsOneMessagePerGranule(t *testing.T) {
	src := &fakeBackend{notifs: viirsNotifications()}
	gen, err := FileGenerator(context.Background(), src, nil, testLogger(), nil)
	require.NoError(t, err)

	snk := &fakeSink{}
	cfg := MessageConfig{
		Subject: "/segment/viirs/l1b/",
		Type:    "file",
		Data:    map[string]any{"sensor": "viirs"},
	}
	require.NoError(t, Publish(gen.Events(), cfg, snk, testLogger(), nil))

	msgs := snk.messages()
	require.Len(t, msgs, len(viirsGranuleKeys))
	for i, msg := range msgs {
		assert.Equal(t, "/segment/viirs/l1b/", msg.Subject)
		assert.Equal(t, "file", msg.Type)
		assert.Equal(t, "viirs", msg.Data["sensor"])
		assert.Equal(t, "s3://viirs-data/"+viirsGranuleKeys[i], msg.Data[types.DataKeyURI])
	}
}

func TestPublishSingleGranuleResolvesAddress(t *testing.T) {
	src := &fakeBackend{notifs: []types.RawNotification{notifFor("viirs-data", viirsGranuleKeys[0])}}
	gen, err := FileGenerator(context.Background(), src, nil, testLogger(), nil)
	require.NoError(t, err)

	snk := &fakeSink{}
	cfg := MessageConfig{
		Subject: "/segment/viirs/l1b/",
		Type:    "file",
		Data:    map[string]any{"sensor": "viirs"},
	}
	require.NoError(t, Publish(gen.Events(), cfg, snk, testLogger(), nil))

	msgs := snk.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t,
		"s3://viirs-data/sdr/SVM13_npp_d20240408_t1006227_e1007469_b64498_c20240408102334392250_cspp_dev.h5",
		msgs[0].Data[types.DataKeyURI])
	assert.Equal(t, "viirs", msgs[0].Data["sensor"])
	assert.Empty(t, msgs[0].Data["start_time"])
}
