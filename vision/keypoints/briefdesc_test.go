package keypoints

import (
	"testing"

	"go.viam.com/test"
)

func TestGenerateSamplePairs(t *testing.T) {
	sp := GenerateSamplePairs(SamplingFixed, 128, 31)
	test.That(t, sp.N, test.ShouldEqual, 128)
	test.That(t, len(sp.P0), test.ShouldEqual, 128)
	test.That(t, len(sp.P1), test.ShouldEqual, 128)
	// fixed sampling is reproducible
	sp2 := GenerateSamplePairs(SamplingFixed, 128, 31)
	test.That(t, sp, test.ShouldResemble, sp2)

	spu := GenerateSamplePairs(SamplingUniform, 64, 15)
	spu2 := GenerateSamplePairs(SamplingUniform, 64, 15)
	test.That(t, spu, test.ShouldResemble, spu2)
}

func TestComputeBRIEFDescriptors(t *testing.T) {
	img := createTestImage()
	cfg := &BRIEFConfig{N: 256, Sampling: SamplingFixed, UseOrientation: false, PatchSize: 31}
	sp := GenerateSamplePairs(cfg.Sampling, cfg.N, cfg.PatchSize)
	kps := &FASTKeypoints{Points: KeyPoints{{50, 30}, {99, 149}, {2, 2}}}
	descs, err := ComputeBRIEFDescriptors(img, sp, kps, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(descs), test.ShouldEqual, 3)
	test.That(t, len(descs[0]), test.ShouldEqual, 4)

	// a descriptor matches itself exactly
	d, err := HammingDistance(descs[0], descs[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldEqual, 0)

	// opposite corners look different
	d, err = HammingDistance(descs[0], descs[1])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldBeGreaterThan, 0)

	// a keypoint whose patch leaves the image gets an empty descriptor
	test.That(t, descs[2], test.ShouldResemble, make(Descriptor, 4))
}

func TestComputeBRIEFDescriptorsBadPairCount(t *testing.T) {
	img := createTestImage()
	cfg := &BRIEFConfig{N: 100, Sampling: SamplingFixed, PatchSize: 31}
	sp := GenerateSamplePairs(cfg.Sampling, cfg.N, cfg.PatchSize)
	_, err := ComputeBRIEFDescriptors(img, sp, &FASTKeypoints{}, cfg)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHammingDistanceLengthMismatch(t *testing.T) {
	_, err := HammingDistance(make(Descriptor, 4), make(Descriptor, 2))
	test.That(t, err, test.ShouldNotBeNil)
}
